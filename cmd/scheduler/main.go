package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/adapters/scheduler"
	"github.com/kirillkom/renewal-tracker/internal/bootstrap"
	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/observability/logging"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	runOnStart := flag.Bool("run-on-start", false, "sweep immediately, then follow the schedule")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("scheduler", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("scheduler", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sweepMetrics := metrics.NewSweepMetrics("scheduler")
	sweeper := scheduler.NewSweeper(app.AlertUC, scheduler.SweeperOptions{
		Lease:   app.Lease,
		Metrics: sweepMetrics,
		Logger:  logger,
		Timeout: time.Hour,
	})

	if *once {
		if _, _, err := sweeper.RunOnce(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	loc, _ := cfg.Location()
	mux := http.NewServeMux()
	mux.Handle("/metrics", sweepMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("scheduler_metrics_server_failed", "error", err)
		}
	}()

	err = scheduler.RunDaily(ctx, sweeper, scheduler.CronOptions{
		Spec:       cfg.AlertCron,
		Location:   loc,
		RunOnStart: *runOnStart,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("scheduler_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
