package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"drivingschool-api/internal/access"
	"drivingschool-api/internal/auth"
	"drivingschool-api/internal/config"
	"drivingschool-api/internal/db"
	"drivingschool-api/internal/handler"
	"drivingschool-api/internal/health"
	"drivingschool-api/internal/logger"
	"drivingschool-api/internal/metrics"
	"drivingschool-api/internal/ratelimit"
	"drivingschool-api/internal/server"
	"drivingschool-api/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lg := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	mainLog := logger.Component(lg, "main")

	if cfg.DefaultSecretInUse() {
		mainLog.Error().Msg("JWT_SECRET is not set, signing sessions with the built-in default secret; anyone can forge tokens")
	}
	if cfg.Auth.AdminToken == "" {
		mainLog.Warn().Msg("ADMIN_TOKEN is not set, admin routes will answer 500")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// database
	mgr, err := db.Open(db.Config{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		AcquireTimeout: cfg.Database.AcquireTimeout,
		IdleTimeout:    cfg.Database.IdleTimeout,
		ReconnectDelay: cfg.Database.ReconnectDelay,
		Retry: db.RetryPolicy{
			MaxAttempts: cfg.Database.ConnectAttempts,
			Delay:       cfg.Database.ConnectDelay,
		},
	}, lg)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("open database")
	}
	defer mgr.Close()

	hr := health.New(lg)
	mgr.OnHealthChange(hr.Set)
	if err := mgr.Connect(ctx); err != nil {
		mainLog.Fatal().Err(err).Msg("database unavailable, giving up")
	}
	if err := metrics.RegisterDB(mgr.DB()); err != nil {
		mainLog.Warn().Err(err).Msg("pool metrics not registered")
	}

	st := store.New(mgr, store.Policy{AdminEditTerminal: cfg.Appointments.AdminEditTerminal})
	creds := auth.NewCredentialStore(st, auth.CredentialOptions{
		BcryptCost:       cfg.Auth.BcryptCost,
		LockoutThreshold: cfg.Auth.LockoutThreshold,
	}, lg)
	seed(ctx, cfg, st, creds, mainLog)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	resolver := access.NewResolver(issuer, cfg.Auth.AdminToken)

	limiter := ratelimit.New(windowStore(ctx, cfg, mainLog), cfg.RateLimit.Window, cfg.RateLimit.Max, lg)

	router, err := server.NewRouter(server.Deps{
		Handler:        handler.New(creds, issuer, st, cfg.Location()),
		Resolver:       resolver,
		Limiter:        limiter,
		Health:         hr,
		Log:            lg,
		Development:    cfg.Development(),
		TrustedProxies: cfg.Proxies(),
	})
	if err != nil {
		mainLog.Fatal().Err(err).Msg("router")
	}

	// grpc health on its own port
	if port := cfg.Server.HealthGRPCPort; port != "" {
		lis, err := net.Listen("tcp", ":"+port)
		if err != nil {
			mainLog.Fatal().Err(err).Msg("listen grpc health")
		}
		gs := hr.Server()
		go func() {
			if err := hr.Serve(gs, lis); err != nil {
				mainLog.Error().Err(err).Msg("grpc health")
			}
		}()
		defer gs.GracefulStop()
	}

	srv := server.New(":"+cfg.Server.Port, router, lg)
	if err := srv.Run(ctx); err != nil {
		mainLog.Error().Err(err).Msg("server")
	}
	hr.Shutdown()
	mainLog.Info().Msg("bye")
}

// windowStore picks redis when REDIS_URL is set and falls back to memory
// when it is unset or unreachable.
func windowStore(ctx context.Context, cfg *config.Config, l zerolog.Logger) ratelimit.Store {
	if cfg.RateLimit.RedisURL != "" {
		client, err := ratelimit.DialRedis(ctx, cfg.RateLimit.RedisURL)
		if err == nil {
			l.Info().Msg("rate limit windows stored in redis")
			return ratelimit.NewRedisStore(client, cfg.RateLimit.Window)
		}
		l.Error().Err(err).Msg("redis unavailable, rate limit windows kept in memory")
	}
	ms := ratelimit.NewMemoryStore(cfg.RateLimit.Window)
	ms.StartJanitor(cfg.RateLimit.Window)
	return ms
}

// seed creates the configured user when the users table is empty.
func seed(ctx context.Context, cfg *config.Config, st *store.Store, creds *auth.CredentialStore, l zerolog.Logger) {
	if cfg.Seed.Username == "" || cfg.Seed.Password == "" {
		return
	}
	n, err := st.CountUsers(ctx)
	if err != nil {
		l.Error().Err(err).Msg("seed: count users")
		return
	}
	if n > 0 {
		return
	}
	if _, err := creds.Register(ctx, cfg.Seed.Username, cfg.Seed.Password); err != nil {
		l.Error().Err(err).Msg("seed: create user")
		return
	}
	l.Info().Str("username", cfg.Seed.Username).Msg("seed user created")
}
