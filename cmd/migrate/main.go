package main

import (
	"context"
	"os"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/renewal-tracker/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("migrate", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("migrate", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("open_postgres_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.Error("migrations_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations_applied")
}
