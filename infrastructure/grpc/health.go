// Package grpc serves the standard gRPC health protocol for orchestrators and load balancers.
package grpc

import (
	"campus-chat/errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported by the health endpoint besides the overall "" entry.
const ServiceName = "campus-chat"

type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := &HealthServer{
		log:    log,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the chat service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop is called or the listener fails.
func (h *HealthServer) Serve(listener net.Listener) error {
	h.log.Info("gRPC health server listening", "addr", listener.Addr().String())
	if err := h.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers then drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
