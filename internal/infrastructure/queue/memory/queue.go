// Package memory is an in-process job queue for single-binary deployments and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue"
)

type message struct {
	payload     []byte
	attempt     int
	publishedAt time.Time
}

type Queue struct {
	maxDeliver int
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	closed   bool
	channels map[domain.QueueName]chan message
	// seenIDs maps a message id to its publish time, pruned after dedupWindow.
	seenIDs     map[string]time.Time
	dedupWindow time.Duration
	now         func() time.Time
	timers      map[*time.Timer]struct{}
}

type Options struct {
	MaxDeliver int
	Buffer     int
	Backoff    func(attempt int) time.Duration
	// DedupWindow matches the broker duplicate window. Default 10m.
	DedupWindow time.Duration
	Logger      *slog.Logger
}

func New(options Options) *Queue {
	if options.MaxDeliver <= 0 {
		options.MaxDeliver = 5
	}
	if options.Buffer <= 0 {
		options.Buffer = 256
	}
	if options.Backoff == nil {
		options.Backoff = queue.Backoff
	}
	if options.DedupWindow <= 0 {
		options.DedupWindow = 10 * time.Minute
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	channels := make(map[domain.QueueName]chan message)
	for _, name := range domain.AllQueues() {
		channels[name] = make(chan message, options.Buffer)
	}
	return &Queue{
		maxDeliver: options.MaxDeliver,
		backoff:    options.Backoff,
		logger:     options.Logger,
		channels:   channels,
		seenIDs:     make(map[string]time.Time),
		dedupWindow: options.DedupWindow,
		now:         time.Now,
		timers:      make(map[*time.Timer]struct{}),
	}
}

func (q *Queue) EnqueueOCR(ctx context.Context, job domain.OCRJob) error {
	return q.publish(ctx, domain.QueueOCR, job, "")
}

func (q *Queue) EnqueueExtraction(ctx context.Context, job domain.ExtractionJob) error {
	return q.publish(ctx, domain.QueueExtract, job, "")
}

func (q *Queue) EnqueueEmail(ctx context.Context, job domain.EmailJob) error {
	return q.publish(ctx, domain.QueueEmail, job, job.ID)
}

func (q *Queue) publish(ctx context.Context, name domain.QueueName, job any, msgID string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", name, err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.WrapError(domain.ErrTemporary, "memory publish", queue.ErrQueueClosed)
	}
	now := q.now()
	if msgID != "" {
		q.pruneSeen(now)
		if _, dup := q.seenIDs[msgID]; dup {
			q.mu.Unlock()
			return nil
		}
		q.seenIDs[msgID] = now
	}
	ch := q.channels[name]
	q.mu.Unlock()

	select {
	case ch <- message{payload: payload, attempt: 1, publishedAt: now}:
		return nil
	case <-ctx.Done():
		if msgID != "" {
			q.mu.Lock()
			delete(q.seenIDs, msgID)
			q.mu.Unlock()
		}
		return domain.WrapError(domain.ErrTemporary, "memory publish", ctx.Err())
	}
}

// pruneSeen drops ids older than the dedup window. Callers hold q.mu.
func (q *Queue) pruneSeen(now time.Time) {
	for id, at := range q.seenIDs {
		if now.Sub(at) >= q.dedupWindow {
			delete(q.seenIDs, id)
		}
	}
}

// Consume handles messages of one queue sequentially until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, name domain.QueueName, handler ports.JobHandler) error {
	ch, ok := q.channels[name]
	if !ok {
		return fmt.Errorf("unknown queue %q", name)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			q.dispatch(ctx, name, msg, handler)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, name domain.QueueName, msg message, handler ports.JobHandler) {
	err := handler(ctx, ports.Delivery{
		Queue:       name,
		Payload:     msg.payload,
		Attempt:     msg.attempt,
		MaxAttempts: q.maxDeliver,
		PublishedAt: msg.publishedAt,
	})
	disposition := queue.Decide(err, msg.attempt, q.maxDeliver)
	if err != nil {
		q.logger.Warn("queue.job.failed",
			"queue", name,
			"attempt", msg.attempt,
			"max_attempts", q.maxDeliver,
			"disposition", disposition.String(),
			"error", err,
		)
	}
	if disposition == queue.Retry {
		msg.attempt++
		q.redeliver(name, msg, q.backoff(msg.attempt-1))
	}
}

func (q *Queue) redeliver(name domain.QueueName, msg message, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.channels[name] <- msg:
		default:
			q.logger.Error("queue.job.dropped", "queue", name, "reason", "buffer full")
		}
	})
	q.timers[timer] = struct{}{}
}

// Close stops pending redeliveries and rejects new publishes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	clear(q.timers)
}
