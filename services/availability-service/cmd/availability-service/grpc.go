package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/grpcx"
	"github.com/md-rashed-zaman/tourbook/libs/runtime"
)

// startGrpcServer exposes grpc.health.v1; its status tracks the HTTP readiness checks.
func startGrpcServer(ctx context.Context, cfg serviceConfig, logger *slog.Logger, checks []runtime.ReadyCheck) error {
	lis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	health := grpcx.NewHealthReporter(cfg.Service, 10*time.Second, func(ctx context.Context) bool {
		failed := runtime.CheckAll(ctx, checks)
		if len(failed) > 0 {
			logger.Warn("grpc health not serving", "failed", failed)
		}
		return len(failed) == 0
	})
	health.Register(srv)
	go health.Run(ctx)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
