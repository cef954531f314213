package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1"
	"github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1/handler"
	"github.com/JonathonClaypool/MilMap-sub001/internal/usecase"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/config"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/http_server"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/telemetry"
	"github.com/go-playground/validator/v10"
)

func Run(cfg *config.Config) {
	l, err := logger.NewZapLogger(cfg.Logger)
	if err != nil {
		log.Fatalln("failed to initialize logger: ", err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	components, err := NewComponents(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to initialize components", "error", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			l.Error("failed to close cache backend", "error", err)
		}
	}()

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		runCleanupLoop(ctx, components.UseCase, cfg.Cache.CleanupInterval, l)
	}()

	validate := validator.New(validator.WithRequiredStructEnabled())
	h := handler.NewHandler(validate, components.UseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	serverErr := make(chan error, 1)
	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		l.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			l.Error("http server failed", "error", err)
		}
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http_server shutdown completed")
	}

	select {
	case <-cleanupDone:
	case <-shutdownCtx.Done():
		l.Warn("timeout waiting for cache cleanup to finish")
	}

	l.Info("application shutdown completed")
}

// runCleanupLoop enforces cache age and size limits every interval until ctx
// is done. A non-positive interval disables it.
func runCleanupLoop(ctx context.Context, uc *usecase.MapUseCase, interval time.Duration, l logger.Logger) {
	if interval <= 0 {
		l.Info("periodic cache cleanup disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports, err := uc.CleanupCaches(ctx)
			if err != nil && ctx.Err() == nil {
				l.Error("periodic cache cleanup failed", "error", err)
			}
			for name, r := range reports {
				l.Info("periodic cache cleanup", "cache", name,
					"expired", r.ExpiredRemoved, "evicted", r.EvictedRemoved, "bytes_freed", r.BytesFreed)
			}
		}
	}
}
