package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"
)

// AdvisoryLease is a session-scoped pg_try_advisory_lock held on a dedicated
// connection until release.
type AdvisoryLease struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAdvisoryLease(db *sql.DB, logger *slog.Logger) *AdvisoryLease {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryLease{db: db, logger: logger}
}

func (l *AdvisoryLease) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lease connection: %w", err)
	}

	key := leaseKey(name)
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			l.logger.Warn("lease.release_failed", "name", name, "error", err)
		}
		_ = conn.Close()
	}
	return release, true, nil
}

func leaseKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
