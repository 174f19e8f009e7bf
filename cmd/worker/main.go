package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/adapters/worker"
	"github.com/kirillkom/renewal-tracker/internal/bootstrap"
	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/observability/logging"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("worker", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	if cfg.QueueBackend == "memory" {
		logger.Error("worker_requires_shared_broker", "queue_backend", cfg.QueueBackend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithResilienceObserver(workerMetrics))
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	w := worker.New(app.Queue, app.ProcessUC, app.EmailUC, worker.Options{
		EmailsPerMinute: cfg.EmailRatePerMinute,
		Metrics:         workerMetrics,
		Logger:          logger,
	})
	if err := w.Run(ctx); err != nil {
		logger.Error("worker_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
