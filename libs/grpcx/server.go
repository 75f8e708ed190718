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

// NewServer builds a gRPC server with tracing, request id and access logging wired in.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	return grpc.NewServer(opts...)
}

// HealthReporter keeps a grpc.health.v1 service in sync with a readiness probe.
type HealthReporter struct {
	srv     *health.Server
	service string
	probe   func(context.Context) bool
	every   time.Duration
}

func NewHealthReporter(service string, every time.Duration, probe func(context.Context) bool) *HealthReporter {
	if every <= 0 {
		every = 10 * time.Second
	}
	return &HealthReporter{
		srv:     health.NewServer(),
		service: service,
		probe:   probe,
		every:   every,
	}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Run updates serving status until ctx is done, then reports NOT_SERVING so
// load balancers drain before shutdown.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.every)
	defer ticker.Stop()

	h.update(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.update(ctx)
		}
	}
}

func (h *HealthReporter) update(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil && !h.probe(ctx) {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(h.service, st)
}
