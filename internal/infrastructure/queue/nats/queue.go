package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/resilience"
)

// Queue publishes and consumes pipeline jobs on a JetStream work-queue stream.
type Queue struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	stream        string
	subjectPrefix string
	maxDeliver    int
	ackWait       time.Duration
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	Stream               string
	SubjectPrefix        string
	MaxDeliver           int
	AckWait              time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(ctx context.Context, url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stream := options.Stream
	if stream == "" {
		stream = "DOCUMENTS"
	}
	prefix := options.SubjectPrefix
	if prefix == "" {
		prefix = "documents"
	}
	maxDeliver := options.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 5
	}
	ackWait := options.AckWait
	if ackWait <= 0 {
		ackWait = 2 * time.Minute
	}

	conn, err := nats.Connect(
		url,
		nats.Name("renewal-tracker"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats.disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats.reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	q := &Queue{
		conn:          conn,
		js:            js,
		stream:        stream,
		subjectPrefix: prefix,
		maxDeliver:    maxDeliver,
		ackWait:       ackWait,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}
	if err := q.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream(ctx context.Context) error {
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       q.stream,
		Subjects:   []string{q.subjectPrefix + ".>"},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", q.stream, err)
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) EnqueueOCR(ctx context.Context, job domain.OCRJob) error {
	return q.publish(ctx, domain.QueueOCR, job, "")
}

func (q *Queue) EnqueueExtraction(ctx context.Context, job domain.ExtractionJob) error {
	return q.publish(ctx, domain.QueueExtract, job, "")
}

// EnqueueEmail deduplicates on the job id inside the stream duplicate window.
func (q *Queue) EnqueueEmail(ctx context.Context, job domain.EmailJob) error {
	return q.publish(ctx, domain.QueueEmail, job, job.ID)
}

func (q *Queue) publish(ctx context.Context, name domain.QueueName, job any, msgID string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", name, err)
	}
	subject := queue.Subject(q.subjectPrefix, name)

	call := func(callCtx context.Context) error {
		var opts []jetstream.PublishOpt
		if msgID != "" {
			opts = append(opts, jetstream.WithMsgID(msgID))
		}
		if _, err := q.js.Publish(callCtx, subject, payload, opts...); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Consume pulls one message at a time from the durable consumer of the
// queue until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, name domain.QueueName, handler ports.JobHandler) error {
	subject := queue.Subject(q.subjectPrefix, name)
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       "worker-" + string(name),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.ackWait,
		MaxDeliver:    q.maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer for %s: %w", subject, err)
	}

	iter, err := cons.Messages(jetstream.PullMaxMessages(1))
	if err != nil {
		return fmt.Errorf("start pull for %s: %w", subject, err)
	}
	stop := context.AfterFunc(ctx, iter.Stop)
	defer stop()
	defer iter.Stop()

	q.logger.Info("queue.consume.started", "queue", name, "subject", subject)
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("queue.consume.next_failed", "queue", name, "error", err)
			continue
		}
		q.dispatch(ctx, name, msg, handler)
	}
}

func (q *Queue) dispatch(ctx context.Context, name domain.QueueName, msg jetstream.Msg, handler ports.JobHandler) {
	delivery := ports.Delivery{
		Queue:       name,
		Payload:     msg.Data(),
		Attempt:     1,
		MaxAttempts: q.maxDeliver,
	}
	if meta, err := msg.Metadata(); err == nil {
		delivery.Attempt = int(meta.NumDelivered)
		delivery.PublishedAt = meta.Timestamp
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go q.heartbeat(handlerCtx, msg)

	err := handler(handlerCtx, delivery)
	disposition := queue.Decide(err, delivery.Attempt, delivery.MaxAttempts)

	var ackErr error
	switch disposition {
	case queue.Ack:
		ackErr = msg.Ack()
	case queue.Terminate:
		ackErr = msg.Term()
	case queue.Retry:
		ackErr = msg.NakWithDelay(queue.Backoff(delivery.Attempt))
	}
	if err != nil {
		q.logger.Warn("queue.job.failed",
			"queue", name,
			"attempt", delivery.Attempt,
			"max_attempts", delivery.MaxAttempts,
			"disposition", disposition.String(),
			"error", err,
		)
	}
	if ackErr != nil {
		q.logger.Error("queue.job.ack_failed", "queue", name, "disposition", disposition.String(), "error", ackErr)
	}
}

// heartbeat extends the ack deadline while a long OCR job runs.
func (q *Queue) heartbeat(ctx context.Context, msg jetstream.Msg) {
	ticker := time.NewTicker(q.ackWait / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := msg.InProgress(); err != nil {
				q.logger.Warn("queue.job.in_progress_failed", "error", err)
			}
		}
	}
}
