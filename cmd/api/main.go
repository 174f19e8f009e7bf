package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/renewal-tracker/internal/adapters/http"
	"github.com/kirillkom/renewal-tracker/internal/adapters/worker"
	"github.com/kirillkom/renewal-tracker/internal/bootstrap"
	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/observability/logging"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("api", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []httpadapter.RouterOption{
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(metrics.NewHTTPServerMetrics("api")),
	}
	if app.Files != nil {
		opts = append(opts, httpadapter.WithFileStore(app.Files))
	}
	router := httpadapter.NewRouter(cfg, app.IngestUC, app.ProcessUC, app.ManageUC, app.ExportUC, opts...).Handler()

	// The in-memory broker only reaches consumers in this process.
	if cfg.QueueBackend == "memory" {
		w := worker.New(app.Queue, app.ProcessUC, app.EmailUC, worker.Options{
			EmailsPerMinute: cfg.EmailRatePerMinute,
			Logger:          logger,
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("in_process_worker_failed", "error", err)
				stop()
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("api_listen_failed", "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_conns", cfg.APIMaxConns)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
