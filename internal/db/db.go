// Package db owns the database connection pool. Every query goes through one
// of four primitives that acquire a pooled connection, run a single statement
// and release the connection on every return path.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers "postgres"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/metrics"
)

type Config struct {
	Driver         string
	DSN            string
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	ReconnectDelay time.Duration
	Retry          RetryPolicy
}

type Manager struct {
	db  *sqlx.DB
	cfg Config
	log zerolog.Logger

	healthy      atomic.Bool
	reconnecting atomic.Bool
	reconnects   *rate.Limiter

	mu        sync.Mutex
	listeners []func(healthy bool)

	closeOnce sync.Once
	closed    chan struct{}
}

// Open prepares the pool. No connection is made until Connect.
func Open(cfg Config, log zerolog.Logger) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn not configured")
	}
	if cfg.Driver == "" {
		cfg.Driver = "pgx"
	}
	sdb, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxConns > 0 {
		sdb.SetMaxOpenConns(cfg.MaxConns)
		sdb.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.IdleTimeout > 0 {
		sdb.SetConnMaxIdleTime(cfg.IdleTimeout)
	}
	return New(sdb, cfg, log), nil
}

// New wraps an existing pool.
func New(sdb *sqlx.DB, cfg Config, log zerolog.Logger) *Manager {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	cfg.ReconnectDelay = delay
	return &Manager{
		db:         sdb,
		cfg:        cfg,
		log:        log.With().Str("component", "db").Logger(),
		reconnects: rate.NewLimiter(rate.Every(delay), 1),
		closed:     make(chan struct{}),
	}
}

// Connect verifies connectivity and bootstraps the schema under the retry
// policy. The error wraps apperrors.ErrUnavailable once attempts run out.
func (m *Manager) Connect(ctx context.Context) error {
	attempts := m.cfg.Retry.MaxAttempts
	err := m.cfg.Retry.Do(ctx, func(attempt int) error {
		m.log.Info().Int("attempt", attempt).Int("max_attempts", attempts).Msg("connecting to database")
		if err := m.Ping(ctx); err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("database not reachable")
			return err
		}
		if err := m.Bootstrap(ctx); err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("schema bootstrap failed")
			return err
		}
		return nil
	})
	if err != nil {
		m.setHealthy(false)
		return err
	}
	m.log.Info().Msg("database ready")
	m.setHealthy(true)
	return nil
}

func (m *Manager) Ping(ctx context.Context) error {
	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}
	return m.db.PingContext(ctx)
}

// All runs q and scans every row into dest, which must be a pointer to a slice.
func (m *Manager) All(ctx context.Context, dest any, q string, args ...any) (err error) {
	defer observe("all", time.Now(), &err)
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = conn.SelectContext(ctx, dest, q, args...); err != nil {
		m.noteFailure(err)
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// One runs q and scans the first row into dest. It returns ErrNoRows when
// nothing matched.
func (m *Manager) One(ctx context.Context, dest any, q string, args ...any) (err error) {
	defer observe("one", time.Now(), &err)
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = conn.GetContext(ctx, dest, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRows
		}
		m.noteFailure(err)
		return fmt.Errorf("query row: %w", err)
	}
	return nil
}

// Run executes q and returns the number of affected rows.
func (m *Manager) Run(ctx context.Context, q string, args ...any) (n int64, err error) {
	defer observe("run", time.Now(), &err)
	conn, err := m.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		m.noteFailure(err)
		return 0, fmt.Errorf("exec: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Exec runs a parameterless statement, such as DDL.
func (m *Manager) Exec(ctx context.Context, q string) (err error) {
	defer observe("exec", time.Now(), &err)
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, q); err != nil {
		m.noteFailure(err)
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// acquire takes a dedicated connection from the pool. Only the wait for a
// free connection is bounded by AcquireTimeout; the statement itself runs
// under the caller's ctx.
func (m *Manager) acquire(ctx context.Context) (*sqlx.Conn, error) {
	actx := ctx
	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}
	conn, err := m.db.Connx(actx)
	if err == nil {
		return conn, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: no database connection available within %s", apperrors.ErrUnavailable, m.cfg.AcquireTimeout)
	}
	m.noteFailure(err)
	return nil, fmt.Errorf("acquire connection: %w", err)
}

func (m *Manager) DB() *sql.DB { return m.db.DB }

func (m *Manager) Healthy() bool { return m.healthy.Load() }

// OnHealthChange registers fn to be called whenever connectivity flips.
func (m *Manager) OnHealthChange(fn func(healthy bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
	fn(m.Healthy())
}

func (m *Manager) setHealthy(ok bool) {
	if m.healthy.Swap(ok) == ok {
		return
	}
	m.mu.Lock()
	ls := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(ok)
	}
}

// Close stops background reconnects and closes the pool.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return m.db.Close()
}

func observe(op string, start time.Time, err *error) {
	e := *err
	if errors.Is(e, ErrNoRows) {
		e = nil
	}
	metrics.ObserveQuery(op, time.Since(start), e)
}
