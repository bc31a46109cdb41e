package grpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestRefreshTracksDependencies(t *testing.T) {
	var dbErr error
	s := New(map[string]Check{
		"database": func(context.Context) error { return dbErr },
	}, 0, zerolog.Nop())

	ctx := context.Background()
	status, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status before the first check = %v", status)
	}

	s.Refresh()
	if status, _ = s.Status(ctx); status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status after a healthy check = %v", status)
	}

	dbErr = errors.New("connection refused")
	s.Refresh()
	if status, _ = s.Status(ctx); status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after a failed check = %v", status)
	}
}
