package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Checker verifies a dependency, e.g. the OCR backend binaries.
type Checker interface {
	Check(ctx context.Context) error
}

// Health serves grpc.health.v1 for the conversion service. Status follows
// the latest Checker result.
type Health struct {
	grpc    *grpc.Server
	health  *health.Server
	checker Checker
	service string
	logger  *slog.Logger
}

func NewHealth(checker Checker, service string, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	// Reflection for grpcurl
	reflection.Register(gs)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Health{grpc: gs, health: hs, checker: checker, service: service, logger: logger}
}

// Refresh runs the checker once and publishes the result.
func (h *Health) Refresh(ctx context.Context) error {
	err := h.checker.Check(ctx)
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("dependency check failed", "service", h.service, "error", err)
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
	return err
}

// Watch refreshes status every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	_ = h.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = h.Refresh(ctx)
		}
	}
}

func (h *Health) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// GracefulStop marks everything NOT_SERVING and drains the server.
func (h *Health) GracefulStop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
