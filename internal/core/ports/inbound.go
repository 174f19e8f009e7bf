package ports

import (
	"context"
	"io"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type UploadInput struct {
	OwnerID  *string
	Filename string
	MimeType string
	Body     io.Reader
}

type ManualInput struct {
	OwnerID    *string
	Vendor     *string
	EndDate    *domain.Date
	NoticeDays *int
	AutoRenews *bool
}

// DocumentIngestor is the inbound contract for document creation.
type DocumentIngestor interface {
	Upload(ctx context.Context, in UploadInput) (*domain.Document, error)
	CreateManual(ctx context.Context, in ManualInput) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for pipeline stages.
type DocumentProcessor interface {
	RunOCR(ctx context.Context, job domain.OCRJob) error
	RunExtraction(ctx context.Context, job domain.ExtractionJob) error
	Reprocess(ctx context.Context, documentID, requesterID string) (*domain.Document, error)
}

// DocumentManager is the inbound read/edit model. An empty requesterID skips
// the ownership check.
type DocumentManager interface {
	Get(ctx context.Context, id, requesterID string) (*domain.Document, error)
	List(ctx context.Context, ownerID string) ([]domain.Document, error)
	Edit(ctx context.Context, id, requesterID string, edit domain.DocumentEdit) (*domain.Document, error)
	Delete(ctx context.Context, id, requesterID string) error
	DownloadURL(ctx context.Context, id, requesterID string) (string, error)
}

// AlertChecker runs the immediate deadline check for one document.
type AlertChecker interface {
	CheckDocument(ctx context.Context, documentID string) (bool, error)
}

type SweepSummary struct {
	Scanned int `json:"scanned"`
	Alerted int `json:"alerted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// AlertSweeper runs the daily deadline sweep.
type AlertSweeper interface {
	Sweep(ctx context.Context) (SweepSummary, error)
}

// DeadlineExporter renders an owner's deadlines as a spreadsheet.
type DeadlineExporter interface {
	ExportDeadlines(ctx context.Context, ownerID string) ([]byte, string, error)
}

// EmailDeliverer sends one queued email.
type EmailDeliverer interface {
	Deliver(ctx context.Context, job domain.EmailJob) error
}
