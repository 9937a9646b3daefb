// Package health tracks whether the service can do useful work and reports
// it over HTTP (/healthz) and the standard gRPC health protocol.
package health

import (
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported to gRPC health clients besides "".
const Service = "drivingschool.api"

type Reporter struct {
	ready atomic.Bool
	down  atomic.Bool
	srv   *grpchealth.Server
	log   zerolog.Logger
}

func New(log zerolog.Logger) *Reporter {
	r := &Reporter{
		srv: grpchealth.NewServer(),
		log: log.With().Str("component", "health").Logger(),
	}
	r.publish(false)
	return r
}

// Set records the database state. It matches the signature of
// db.Manager.OnHealthChange listeners.
func (r *Reporter) Set(ok bool) {
	if r.down.Load() {
		return
	}
	if r.ready.Swap(ok) != ok {
		r.log.Info().Bool("ready", ok).Msg("readiness changed")
	}
	r.publish(ok)
}

func (r *Reporter) Ready() bool { return r.ready.Load() }

func (r *Reporter) publish(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus("", st)
	r.srv.SetServingStatus(Service, st)
}

// Server returns a gRPC server exposing only the health service.
func (r *Reporter) Server() *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, r.srv)
	return s
}

// Serve blocks serving health checks on lis until s is stopped.
func (r *Reporter) Serve(s *grpc.Server, lis net.Listener) error {
	r.log.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
	return s.Serve(lis)
}

// Shutdown reports NOT_SERVING to every watcher and ignores later updates.
func (r *Reporter) Shutdown() {
	r.down.Store(true)
	r.ready.Store(false)
	r.srv.Shutdown()
}
