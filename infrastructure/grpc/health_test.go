package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	server := NewHealthServer(slog.Default())
	done := make(chan error, 1)
	go func() { done <- server.Serve(listener) }()

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Given a server that is not ready yet
	response, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, response.Status)

	// When the dispatcher is up
	server.SetServing(true)
	response, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, response.Status)

	server.Stop()
	req.NoError(<-done)
}
