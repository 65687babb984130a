// Package grpc serves the standard gRPC health service. The served status
// follows the reachability of the remote change database, which is what
// clients use to decide whether they are online.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PingTimeout bounds one database check.
const PingTimeout = 3 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthServer struct {
	address  string
	db       Pinger
	interval time.Duration
	logger   logging.Logger
	health   *health.Server
}

func NewHealthServer(a string, l logging.Logger, db Pinger, interval time.Duration) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{
		address:  a,
		db:       db,
		interval: interval,
		logger:   l.With("module", "grpc_server"),
		health:   h,
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HealthServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)

	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

// refresh pings the database and publishes the result.
func (s *HealthServer) refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "database unreachable", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	return st
}

func (s *HealthServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}
