package db

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivingschool-api/internal/apperrors"
)

func newMock(t *testing.T, cfg Config) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	sdb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	m := New(sqlx.NewDb(sdb, "sqlmock"), cfg, zerolog.Nop())
	t.Cleanup(func() { _ = m.Close() })
	return m, mock
}

func expectSchema(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS appointments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS appointments_student_date_idx").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestConnectRetriesThenBootstraps(t *testing.T) {
	rec := &sleepRecorder{}
	m, mock := newMock(t, Config{Retry: RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second, Sleep: rec.sleep}})

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()
	expectSchema(mock)

	var states []bool
	m.OnHealthChange(func(ok bool) { states = append(states, ok) })

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.Healthy())
	assert.Len(t, rec.calls, 2)
	assert.Equal(t, []bool{false, true}, states)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectGivesUp(t *testing.T) {
	rec := &sleepRecorder{}
	m, mock := newMock(t, Config{Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Second, Sleep: rec.sleep}})

	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(errors.New("no route to host"))
	}

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Contains(t, err.Error(), "no route to host")
	assert.False(t, m.Healthy())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectRetriesFailedBootstrap(t *testing.T) {
	rec := &sleepRecorder{}
	m, mock := newMock(t, Config{Retry: RetryPolicy{MaxAttempts: 2, Sleep: rec.sleep}})

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	mock.ExpectPing()
	expectSchema(mock)

	require.NoError(t, m.Connect(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type row struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
}

func TestAll(t *testing.T) {
	m, mock := newMock(t, Config{})
	mock.ExpectQuery("SELECT id, username FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(1, "alice01").AddRow(2, "bob_22"))

	var out []row
	require.NoError(t, m.All(context.Background(), &out, "SELECT id, username FROM users ORDER BY id"))
	assert.Equal(t, []row{{1, "alice01"}, {2, "bob_22"}}, out)
	assert.Zero(t, m.DB().Stats().InUse)
}

func TestOneNoRows(t *testing.T) {
	m, mock := newMock(t, Config{})
	mock.ExpectQuery("SELECT id, username FROM users WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}))

	var r row
	err := m.One(context.Background(), &r, "SELECT id, username FROM users WHERE id = $1", int64(9))
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Zero(t, m.DB().Stats().InUse)
}

func TestRunReportsRowsAffected(t *testing.T) {
	m, mock := newMock(t, Config{})
	mock.ExpectExec("DELETE FROM users WHERE id").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := m.Run(context.Background(), "DELETE FROM users WHERE id = $1", int64(7))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConnectionReleasedOnError(t *testing.T) {
	m, mock := newMock(t, Config{})
	mock.ExpectQuery("SELEC").WillReturnError(errors.New("syntax error at or near SELEC"))
	mock.ExpectExec("BROKEN").WillReturnError(errors.New("syntax error"))

	var out []row
	require.Error(t, m.All(context.Background(), &out, "SELEC 1"))
	require.Error(t, m.Exec(context.Background(), "BROKEN"))

	assert.Zero(t, m.DB().Stats().InUse)
	assert.False(t, m.reconnecting.Load(), "statement errors must not trigger reconnects")
}

func TestConnectionErrorSchedulesReconnect(t *testing.T) {
	m, mock := newMock(t, Config{ReconnectDelay: 10 * time.Millisecond})
	m.setHealthy(true)

	var flips atomic.Int32
	m.OnHealthChange(func(bool) { flips.Add(1) })

	lost := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
	mock.ExpectExec("UPDATE users").WillReturnError(lost)
	mock.ExpectPing()

	_, err := m.Run(context.Background(), "UPDATE users SET failed_attempts = 0")
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return m.Healthy() && flips.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))

	assert.True(t, isConnError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, isConnError(&pgconn.PgError{Code: "08006"}))
	assert.True(t, isConnError(&pq.Error{Code: "57P01"}))
	assert.False(t, isConnError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isConnError(nil))
}
