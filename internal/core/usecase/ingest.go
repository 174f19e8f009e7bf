package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

// sniffBytes is how much of an upload is inspected for its real content type.
const sniffBytes = 3072

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	users   ports.UserDirectory
	storage ports.BlobStore
	queue   ports.JobQueue
	alerts  ports.AlertChecker
	limits  domain.TierLimits
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	users ports.UserDirectory,
	storage ports.BlobStore,
	queue ports.JobQueue,
	alerts ports.AlertChecker,
	limits domain.TierLimits,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if limits == nil {
		limits = domain.DefaultTierLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:    repo,
		users:   users,
		storage: storage,
		queue:   queue,
		alerts:  alerts,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, in ports.UploadInput) (*domain.Document, error) {
	format := domain.FormatFor(in.MimeType, in.Filename)
	if format == domain.FormatUnknown {
		return nil, domain.NewValidationError("file", "only PDF, DOC and DOCX files are accepted")
	}
	if in.Body == nil {
		return nil, domain.NewValidationError("file", "file is required")
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, domain.NewValidationError("file", "file is empty")
	}
	if !contentMatchesFormat(head, format) {
		return nil, domain.NewValidationError("file", fmt.Sprintf("file content is not a valid %s document", strings.ToUpper(string(format))))
	}

	if err := uc.checkQuota(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	key := fmt.Sprintf("%d-%s", now.UnixMilli(), sanitizeFilename(in.Filename))
	body := io.MultiReader(bytes.NewReader(head), in.Body)
	storedKey, err := uc.storage.Put(ctx, key, body, format.MimeType())
	if err != nil {
		return nil, fmt.Errorf("save to blob store: %w", err)
	}

	doc := &domain.Document{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		OriginalFilename: in.Filename,
		MimeType:         format.MimeType(),
		BlobKey:          &storedKey,
		Status:           domain.StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(ctx, storedKey); delErr != nil {
			uc.logger.Warn("ingest.blob_cleanup_failed", "blob_key", storedKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.EnqueueOCR(ctx, domain.OCRJob{DocumentID: doc.ID, BlobKey: storedKey}); err != nil {
		msg := "could not schedule processing, please retry"
		if failErr := uc.repo.MarkFailed(ctx, doc.ID, msg); failErr != nil {
			uc.logger.Error("ingest.mark_failed_failed", "document_id", doc.ID, "error", failErr)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "enqueue ocr job", err)
	}

	uc.logger.Info("ingest.uploaded",
		"document_id", doc.ID,
		"format", string(format),
		"blob_key", storedKey,
	)
	return doc, nil
}

// CreateManual records a document typed in by hand; it skips the pipeline.
func (uc *IngestDocumentUseCase) CreateManual(ctx context.Context, in ports.ManualInput) (*domain.Document, error) {
	verr := &domain.ValidationError{}
	if in.Vendor == nil || strings.TrimSpace(*in.Vendor) == "" {
		verr.Add("vendor", "is required")
	}
	if in.NoticeDays != nil && *in.NoticeDays < 0 {
		verr.Add("notice_days", "must be zero or greater")
	}
	if !verr.Empty() {
		return nil, verr
	}
	if err := uc.checkQuota(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	vendor := strings.TrimSpace(*in.Vendor)
	now := uc.now().UTC()
	doc := &domain.Document{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		OriginalFilename: vendor,
		Vendor:           &vendor,
		EndDate:          in.EndDate,
		NoticeDays:       in.NoticeDays,
		AutoRenews:       in.AutoRenews,
		Status:           domain.StatusReady,
		ManualEntry:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create manual document: %w", err)
	}

	if doc.HasDeadline() && uc.alerts != nil {
		if _, err := uc.alerts.CheckDocument(ctx, doc.ID); err != nil {
			uc.logger.Warn("ingest.immediate_check_failed", "document_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

func (uc *IngestDocumentUseCase) checkQuota(ctx context.Context, ownerID *string) error {
	if ownerID == nil {
		return nil
	}
	user, err := uc.users.GetUser(ctx, *ownerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	limit := uc.limits.LimitFor(user.Tier)
	if limit == domain.Unlimited {
		return nil
	}
	count, err := uc.repo.CountByOwner(ctx, *ownerID)
	if err != nil {
		return fmt.Errorf("count owner documents: %w", err)
	}
	if count >= limit {
		return &domain.QuotaExceededError{Tier: user.Tier, Limit: limit}
	}
	return nil
}

// contentMatchesFormat checks the sniffed content type against the declared format.
func contentMatchesFormat(head []byte, format domain.Format) bool {
	var accepted []string
	switch format {
	case domain.FormatPDF:
		accepted = []string{domain.MimePDF}
	case domain.FormatDOCX:
		accepted = []string{domain.MimeDOCX, "application/zip"}
	case domain.FormatDOC:
		accepted = []string{domain.MimeDOC, "application/x-ole-storage"}
	default:
		return false
	}
	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		for _, want := range accepted {
			if m.Is(want) {
				return true
			}
		}
	}
	return false
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.bin"
	}
	return base
}
