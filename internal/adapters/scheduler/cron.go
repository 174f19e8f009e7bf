package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type CronOptions struct {
	// Spec is a standard five-field cron expression, e.g. "0 9 * * *".
	Spec     string
	Location *time.Location
	// RunOnStart triggers one sweep before the first tick.
	RunOnStart bool
	Logger     *slog.Logger
}

// RunDaily drives the sweeper on a cron schedule until ctx is cancelled.
func RunDaily(ctx context.Context, sweeper *Sweeper, opts CronOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	id, err := c.AddFunc(opts.Spec, func() {
		_, _, _ = sweeper.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", opts.Spec, err)
	}

	c.Start()
	logger.Info("scheduler.started", "spec", opts.Spec, "location", loc.String(), "next_run", c.Entry(id).Next)

	if opts.RunOnStart {
		go func() { _, _, _ = sweeper.RunOnce(ctx) }()
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("scheduler.stopped")
	return nil
}
