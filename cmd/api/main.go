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

	httpadapter "github.com/kirillkom/prn-reconciler/internal/adapters/http"
	"github.com/kirillkom/prn-reconciler/internal/bootstrap"
	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/observability/logging"
	"github.com/kirillkom/prn-reconciler/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logging.Install("prn-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Batch:     app.Batch,
		Reports:   app.Reports,
		Documents: app.Documents,
		Workbooks: app.Workbooks,
		Text:      app.Text,
		Metrics:   app.HTTPMetrics,
	})
	handler, err := router.Handler()
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(app.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return listen(apiServer, "api") })
	group.Go(func() error { return listen(metricsServer, "metrics") })
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		router.Close()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := group.Wait(); err != nil {
		slog.Error("api_stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("api_stopped")
}

func listen(server *http.Server, name string) error {
	slog.Info("http_listening", "server", name, "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
