package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"drivingschool-api/internal/access"
	"drivingschool-api/internal/handler"
	"drivingschool-api/internal/health"
	"drivingschool-api/internal/logger"
	"drivingschool-api/internal/metrics"
	"drivingschool-api/internal/middleware"
	"drivingschool-api/internal/ratelimit"
)

type Deps struct {
	Handler        *handler.Handler
	Resolver       *access.Resolver
	Limiter        *ratelimit.Limiter
	Health         *health.Reporter
	Log            zerolog.Logger
	Development    bool
	TrustedProxies []string
}

// NewRouter assembles the gin engine. /healthz and /metrics sit outside the
// rate limiter; every API route is behind it.
func NewRouter(d Deps) (*gin.Engine, error) {
	if !d.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r.Use(
		metrics.Gin(),
		middleware.RequestLogger(d.Log),
		gin.CustomRecovery(func(c *gin.Context, rec any) {
			middleware.RespondError(c, fmt.Errorf("panic: %v", rec))
		}),
		middleware.SecurityHeaders(),
		middleware.ErrorDetail(d.Development),
	)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil && !d.Health.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("", middleware.RateLimit(d.Limiter))
	d.Handler.Routes(api, d.Resolver)
	return r, nil
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func New(addr string, h http.Handler, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: logger.Component(log, "http"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info().Msg("shutdown requested")
	}
	return s.Shutdown(context.Background())
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}
