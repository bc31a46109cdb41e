// Package grpcserver exposes the standard gRPC health service so
// orchestrators can check the process alongside the HTTP /health route.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// ServiceName is the health service name clients query.
const ServiceName = "focusroom.v1.FocusRoom"

// Check tests one dependency. A non-nil error marks the service as not
// serving until the next successful round.
type Check func(ctx context.Context) error

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	logger   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New builds the server. Checks run every interval; zero means 15s.
func New(checks map[string]Check, interval time.Duration, logger zerolog.Logger) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &Server{
		grpc: grpc.NewServer(
			grpc.UnaryInterceptor(pkglog.UnaryServerInterceptor(logger)),
			grpc.StreamInterceptor(pkglog.StreamServerInterceptor(logger)),
		),
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.refresh()
	s.wg.Add(1)
	go s.loop()

	go func() {
		s.logger.Info().Str("addr", addr).Msg("grpc server listening")
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("grpc server error")
		}
	}()
	return nil
}

func (s *Server) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// refresh runs every check and publishes the aggregate status.
func (s *Server) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Status reports the current status of the named service.
func (s *Server) Status(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Refresh re-runs the checks immediately.
func (s *Server) Refresh() {
	s.refresh()
}

// Stop marks the service as shutting down and drains in-flight calls.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}
