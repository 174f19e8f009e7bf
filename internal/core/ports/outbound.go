package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

// StatusTransition is a compare-and-set on document status.
// UpdatedBefore, when set, additionally requires a stale row.
type StatusTransition struct {
	ID            string
	From          domain.DocumentStatus
	To            domain.DocumentStatus
	UpdatedBefore *time.Time
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	TransitionStatus(ctx context.Context, t StatusTransition) (bool, error)
	MarkFailed(ctx context.Context, id string, errMessage string) error
	// SaveExtraction applies only to a document still in processing.
	SaveExtraction(ctx context.Context, doc *domain.Document) (bool, error)
	SaveEdits(ctx context.Context, doc *domain.Document) error
	SetLastAlertedOn(ctx context.Context, id string, day domain.Date) (bool, error)
	ListAlertCandidates(ctx context.Context, afterID string, limit int) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentTextRepository stores OCR output, one row per document.
type DocumentTextRepository interface {
	SaveText(ctx context.Context, documentID, text string) error
	GetText(ctx context.Context, documentID string) (string, error)
	HasText(ctx context.Context, documentID string) (bool, error)
}

// UserDirectory reads account data owned by another service.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// BlobStore stores uploaded files. Keys are never overwritten.
type BlobStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// TextExtractor converts one file format to plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// DocumentTextExtractor dispatches to the extractor registered for a format.
type DocumentTextExtractor interface {
	Extract(ctx context.Context, format domain.Format, data []byte) (string, error)
}

// FieldExtractor pulls structured renewal fields out of document text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (domain.ExtractionFields, error)
}

// EmailSender hands an alert email to the delivery pipeline.
type EmailSender interface {
	SendEmail(ctx context.Context, job domain.EmailJob) error
}

// EmailProvider delivers one email through an upstream mail API.
type EmailProvider interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

// InAppNotifier persists notifications shown inside the product.
type InAppNotifier interface {
	CreateInAppNotification(ctx context.Context, n domain.Notification) error
}

// JobQueue publishes pipeline jobs.
type JobQueue interface {
	EnqueueOCR(ctx context.Context, job domain.OCRJob) error
	EnqueueExtraction(ctx context.Context, job domain.ExtractionJob) error
	EnqueueEmail(ctx context.Context, job domain.EmailJob) error
}

// Delivery is one at-least-once delivery of a job payload.
type Delivery struct {
	Queue       domain.QueueName
	Payload     []byte
	Attempt     int
	MaxAttempts int
	PublishedAt time.Time
}

// JobHandler processes a delivery. A nil error acks it; permanent errors
// terminate it; other errors redeliver until MaxAttempts.
type JobHandler func(ctx context.Context, d Delivery) error

// JobConsumer feeds deliveries of one queue to a handler, one at a time.
type JobConsumer interface {
	Consume(ctx context.Context, queue domain.QueueName, handler JobHandler) error
}

// Lease is a cross-process mutual exclusion keyed by name.
type Lease interface {
	TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// DeadlineReportWriter renders export rows into a file.
type DeadlineReportWriter interface {
	Write(rows []domain.DeadlineRow, generatedOn domain.Date) ([]byte, error)
	ContentType() string
}
