package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

const serviceName = "worker"

// Pipeline is the part of the processing use case the worker drives.
type Pipeline interface {
	RunOCR(ctx context.Context, job domain.OCRJob) error
	RunExtraction(ctx context.Context, job domain.ExtractionJob) error
}

type Options struct {
	// EmailsPerMinute caps email sends for this worker.
	EmailsPerMinute int
	Metrics         *metrics.WorkerMetrics
	Logger          *slog.Logger
}

// Worker runs one sequential consumer per queue.
type Worker struct {
	consumer ports.JobConsumer
	pipeline Pipeline
	emails   ports.EmailDeliverer
	limiter  *rate.Limiter
	metrics  *metrics.WorkerMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(consumer ports.JobConsumer, pipeline Pipeline, emails ports.EmailDeliverer, opts Options) *Worker {
	perMinute := opts.EmailsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer: consumer,
		pipeline: pipeline,
		emails:   emails,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		metrics:  opts.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled or a consumer fails to start.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	handlers := map[domain.QueueName]ports.JobHandler{
		domain.QueueOCR:     w.handleOCR,
		domain.QueueExtract: w.handleExtraction,
		domain.QueueEmail:   w.handleEmail,
	}
	for _, name := range domain.AllQueues() {
		handler := w.instrument(name, handlers[name])
		g.Go(func() error {
			if err := w.consumer.Consume(ctx, name, handler); err != nil {
				return fmt.Errorf("consume %s: %w", name, err)
			}
			return nil
		})
	}
	w.logger.Info("worker.started", "queues", domain.AllQueues())
	return g.Wait()
}

func (w *Worker) handleOCR(ctx context.Context, d ports.Delivery) error {
	var job domain.OCRJob
	if err := decodeJob(d, &job); err != nil {
		return err
	}
	if job.DocumentID == "" || job.BlobKey == "" {
		return domain.WrapError(domain.ErrPermanent, "decode ocr job", fmt.Errorf("documentId and blobKey are required"))
	}
	return w.pipeline.RunOCR(ctx, job)
}

func (w *Worker) handleExtraction(ctx context.Context, d ports.Delivery) error {
	var job domain.ExtractionJob
	if err := decodeJob(d, &job); err != nil {
		return err
	}
	if job.DocumentID == "" {
		return domain.WrapError(domain.ErrPermanent, "decode extraction job", fmt.Errorf("documentId is required"))
	}
	return w.pipeline.RunExtraction(ctx, job)
}

func (w *Worker) handleEmail(ctx context.Context, d ports.Delivery) error {
	var job domain.EmailJob
	if err := decodeJob(d, &job); err != nil {
		return err
	}

	start := w.now()
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.WrapError(domain.ErrTemporary, "email rate limit", err)
	}
	if w.metrics != nil {
		w.metrics.ObserveRateLimitWait(w.now().Sub(start))
	}
	return w.emails.Deliver(ctx, job)
}

func (w *Worker) instrument(name domain.QueueName, handler ports.JobHandler) ports.JobHandler {
	return func(ctx context.Context, d ports.Delivery) error {
		start := w.now()
		if w.metrics != nil {
			w.metrics.StartJob(string(name))
			if !d.PublishedAt.IsZero() {
				w.metrics.ObserveQueueLag(serviceName, string(name), start.Sub(d.PublishedAt))
			}
		}

		err := handler(ctx, d)

		outcome := queue.Decide(err, d.Attempt, d.MaxAttempts)
		if w.metrics != nil {
			w.metrics.FinishJob(serviceName, string(name), outcome.String(), w.now().Sub(start))
		}
		if outcome == queue.Terminate && err != nil {
			w.logger.Error("worker.job.terminated",
				"queue", name,
				"attempt", d.Attempt,
				"error", err,
			)
		}
		return err
	}
}

func decodeJob(d ports.Delivery, out any) error {
	if err := json.Unmarshal(d.Payload, out); err != nil {
		return domain.WrapError(domain.ErrPermanent, "decode "+string(d.Queue)+" job", err)
	}
	return nil
}
