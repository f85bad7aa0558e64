package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/core/usecase"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/lock"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/queue/nats"
	"github.com/kirillkom/prn-reconciler/internal/observability/logging"
	"github.com/kirillkom/prn-reconciler/internal/observability/metrics"
)

const requestTimeout = 2 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logging.Install("prn-worker", cfg.LogLevel)

	if cfg.NATSURL == "" {
		slog.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	held, err := lock.Acquire(cfg.LockPath)
	if err != nil {
		slog.Error("worker_lock_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = held.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	requests := usecase.NewRequestUseCase(app.Batch, app.BatchMetrics.RecordRequest)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(app.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("worker_subscribing", "subject", cfg.NATSRequestsSubject, "lock", held.Path())
		return app.Bus.SubscribeBatchRequests(groupCtx, func(handlerCtx context.Context, req nats.BatchRequest) error {
			runCtx, cancel := context.WithTimeout(handlerCtx, requestTimeout)
			defer cancel()
			_, err := requests.Handle(runCtx, req.RequestID, req.Source, req.Identifiers)
			return err
		})
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker_stopped")
}
