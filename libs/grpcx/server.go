package grpcx

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing, request-id and access-log interceptors,
// and the standard health service registered. Health starts NOT_SERVING until WatchHealth
// (or the caller) marks it otherwise.
func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerAccessLogInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth runs check every interval and mirrors the result into the health status of
// service ("" is the overall server status). It returns when ctx is done, leaving the status
// NOT_SERVING so load balancers drain the instance.
func WatchHealth(ctx context.Context, hs *health.Server, service string, interval time.Duration, check func(context.Context) error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	update := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := check(checkCtx); err != nil {
			hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
