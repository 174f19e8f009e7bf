package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

const sweepLeaseName = "renewals.alert-sweep"

// Sweeper runs the alert sweep with at most one run in flight. The local
// mutex covers overlapping ticks in one process; the lease covers replicas.
type Sweeper struct {
	sweeps  ports.AlertSweeper
	lease   ports.Lease
	metrics *metrics.SweepMetrics
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	running sync.Mutex
}

type SweeperOptions struct {
	// Lease is optional. Without it only in-process overlap is prevented.
	Lease   ports.Lease
	Metrics *metrics.SweepMetrics
	Logger  *slog.Logger
	// Timeout bounds one run. Zero means no bound.
	Timeout time.Duration
}

func NewSweeper(sweeps ports.AlertSweeper, opts SweeperOptions) *Sweeper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sweeps:  sweeps,
		lease:   opts.Lease,
		metrics: opts.Metrics,
		logger:  logger,
		timeout: opts.Timeout,
		now:     time.Now,
	}
}

// RunOnce performs one sweep. ran is false when another run holds the
// mutex or the lease.
func (s *Sweeper) RunOnce(ctx context.Context) (summary ports.SweepSummary, ran bool, err error) {
	if !s.running.TryLock() {
		s.logger.Warn("alerts.sweep.skipped", "reason", "previous run still in progress")
		s.recordSkipped("skipped_overlap")
		return summary, false, nil
	}
	defer s.running.Unlock()

	if s.lease != nil {
		release, acquired, err := s.lease.TryAcquire(ctx, sweepLeaseName)
		if err != nil {
			return summary, false, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !acquired {
			s.logger.Info("alerts.sweep.skipped", "reason", "lease held by another instance")
			s.recordSkipped("lease_held")
			return summary, false, nil
		}
		defer release()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	s.logger.Info("alerts.sweep.started")
	summary, err = s.sweeps.Sweep(ctx)
	finished := s.now()
	if s.metrics != nil {
		s.metrics.RecordRun(finished, finished.Sub(start), summary.Scanned, summary.Alerted, summary.Skipped, summary.Failed, err)
	}
	if err != nil {
		s.logger.Error("alerts.sweep.failed", "error", err, "scanned", summary.Scanned)
		return summary, true, err
	}
	return summary, true, nil
}

func (s *Sweeper) recordSkipped(result string) {
	if s.metrics != nil {
		s.metrics.RecordSkipped(result)
	}
}
