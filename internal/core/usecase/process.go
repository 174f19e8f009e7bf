package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

type ProcessOptions struct {
	// ExtractionTimeout bounds one field extraction call.
	ExtractionTimeout time.Duration
	// StuckAfter is how long a processing document must be idle before reprocess is allowed.
	StuckAfter time.Duration
	// MaxTextChars bounds the text handed to field extraction.
	MaxTextChars int
}

func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		ExtractionTimeout: 60 * time.Second,
		StuckAfter:        15 * time.Minute,
		MaxTextChars:      domain.MaxExtractionChars,
	}
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	texts     ports.DocumentTextRepository
	storage   ports.BlobStore
	extractor ports.DocumentTextExtractor
	fields    ports.FieldExtractor
	queue     ports.JobQueue
	opts      ProcessOptions
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	texts ports.DocumentTextRepository,
	storage ports.BlobStore,
	extractor ports.DocumentTextExtractor,
	fields ports.FieldExtractor,
	queue ports.JobQueue,
	opts ProcessOptions,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	def := DefaultProcessOptions()
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = def.ExtractionTimeout
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = def.StuckAfter
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = def.MaxTextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		texts:     texts,
		storage:   storage,
		extractor: extractor,
		fields:    fields,
		queue:     queue,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOCR turns the stored file into text. Extraction failures mark the
// document failed and are acknowledged; only store errors are returned.
func (uc *ProcessDocumentUseCase) RunOCR(ctx context.Context, job domain.OCRJob) error {
	doc, proceed, err := uc.claimForOCR(ctx, job.DocumentID)
	if err != nil || !proceed {
		return err
	}

	text, err := uc.extractText(ctx, doc, job.BlobKey)
	if err != nil {
		uc.logger.Warn("pipeline.ocr.failed", "document_id", doc.ID, "error", err)
		return uc.markFailed(ctx, doc.ID, err)
	}

	if err := uc.texts.SaveText(ctx, doc.ID, text); err != nil {
		return fmt.Errorf("save document text: %w", err)
	}

	if err := uc.queue.EnqueueExtraction(ctx, domain.ExtractionJob{DocumentID: doc.ID}); err != nil {
		uc.logger.Error("pipeline.enqueue_extraction.failed", "document_id", doc.ID, "error", err)
		return uc.markFailed(ctx, doc.ID, fmt.Errorf("schedule extraction: %w", err))
	}

	uc.logger.Info("pipeline.ocr.completed", "document_id", doc.ID, "chars", len(text))
	return nil
}

func (uc *ProcessDocumentUseCase) claimForOCR(ctx context.Context, documentID string) (*domain.Document, bool, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.logger.Info("pipeline.ocr.skipped", "document_id", documentID, "reason", "document deleted")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch document by id: %w", err)
	}

	switch doc.Status {
	case domain.StatusQueued:
		ok, err := uc.repo.TransitionStatus(ctx, ports.StatusTransition{
			ID:   doc.ID,
			From: domain.StatusQueued,
			To:   domain.StatusProcessing,
		})
		if err != nil {
			return nil, false, fmt.Errorf("set status=processing: %w", err)
		}
		if !ok {
			uc.logger.Info("pipeline.ocr.skipped", "document_id", doc.ID, "reason", "status changed concurrently")
			return nil, false, nil
		}
		doc.Status = domain.StatusProcessing
		return doc, true, nil
	case domain.StatusProcessing:
		hasText, err := uc.texts.HasText(ctx, doc.ID)
		if err != nil {
			return nil, false, fmt.Errorf("check document text: %w", err)
		}
		if hasText {
			uc.logger.Info("pipeline.ocr.skipped", "document_id", doc.ID, "reason", "text already extracted")
			return nil, false, nil
		}
		return doc, true, nil
	default:
		uc.logger.Info("pipeline.ocr.skipped", "document_id", doc.ID, "status", string(doc.Status))
		return nil, false, nil
	}
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document, blobKey string) (string, error) {
	if blobKey == "" && doc.BlobKey != nil {
		blobKey = *doc.BlobKey
	}
	if blobKey == "" {
		return "", domain.WrapError(domain.ErrPermanent, "extract text", errors.New("document has no stored file"))
	}
	format := domain.FormatFor(doc.MimeType, doc.OriginalFilename)
	if format == domain.FormatUnknown {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("mime type %q", doc.MimeType))
	}

	data, err := uc.download(ctx, blobKey)
	if err != nil {
		return "", err
	}
	text, err := uc.extractor.Extract(ctx, format, data)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrEmptyDocument, "extract text", errors.New("no text found in document"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) download(ctx context.Context, blobKey string) ([]byte, error) {
	rc, err := uc.storage.Get(ctx, blobKey)
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyDocument, "download blob", errors.New("stored file is empty"))
	}
	return data, nil
}

// RunExtraction fills renewal fields from stored text. Failures mark the
// document failed and are returned so the queue retry policy applies.
func (uc *ProcessDocumentUseCase) RunExtraction(ctx context.Context, job domain.ExtractionJob) error {
	doc, proceed, err := uc.claimForExtraction(ctx, job.DocumentID)
	if err != nil || !proceed {
		return err
	}

	fields, err := uc.extractFields(ctx, doc.ID)
	if err != nil {
		uc.logger.Warn("pipeline.extraction.failed", "document_id", doc.ID, "error", err)
		if failErr := uc.markFailed(ctx, doc.ID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	deadlineChanged := doc.ApplyExtraction(fields)
	doc.Status = domain.StatusReady
	doc.ErrorMessage = nil
	doc.UpdatedAt = uc.now().UTC()
	saved, err := uc.repo.SaveExtraction(ctx, doc)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	if !saved {
		uc.logger.Info("pipeline.extraction.discarded", "document_id", doc.ID, "reason", "document left processing")
		return nil
	}

	uc.logger.Info("pipeline.extraction.completed",
		"document_id", doc.ID,
		"has_deadline", doc.HasDeadline(),
		"deadline_changed", deadlineChanged,
	)
	return nil
}

// claimForExtraction holds the document in processing for the model call.
// A queue retry after a failed attempt finds the document failed and claims
// it back, so edits and reprocess requests are refused meanwhile.
func (uc *ProcessDocumentUseCase) claimForExtraction(ctx context.Context, documentID string) (*domain.Document, bool, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.logger.Info("pipeline.extraction.skipped", "document_id", documentID, "reason", "document deleted")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch document by id: %w", err)
	}

	switch doc.Status {
	case domain.StatusProcessing:
		return doc, true, nil
	case domain.StatusFailed:
		ok, err := uc.repo.TransitionStatus(ctx, ports.StatusTransition{
			ID:   doc.ID,
			From: domain.StatusFailed,
			To:   domain.StatusProcessing,
		})
		if err != nil {
			return nil, false, fmt.Errorf("set status=processing: %w", err)
		}
		if !ok {
			uc.logger.Info("pipeline.extraction.skipped", "document_id", doc.ID, "reason", "status changed concurrently")
			return nil, false, nil
		}
		doc.Status = domain.StatusProcessing
		doc.ErrorMessage = nil
		return doc, true, nil
	default:
		uc.logger.Info("pipeline.extraction.skipped", "document_id", doc.ID, "status", string(doc.Status))
		return nil, false, nil
	}
}

func (uc *ProcessDocumentUseCase) extractFields(ctx context.Context, documentID string) (domain.ExtractionFields, error) {
	text, err := uc.texts.GetText(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentTextNotFound) {
			return domain.ExtractionFields{}, domain.WrapError(domain.ErrPermanent, "load document text", err)
		}
		return domain.ExtractionFields{}, fmt.Errorf("load document text: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.opts.ExtractionTimeout)
	defer cancel()
	fields, err := uc.fields.ExtractFields(callCtx, domain.TruncateRunes(text, uc.opts.MaxTextChars))
	if err != nil {
		return domain.ExtractionFields{}, fmt.Errorf("extract fields: %w", err)
	}
	return fields, nil
}

// Reprocess restarts the pipeline for a failed or stuck document. Stored
// text skips OCR.
func (uc *ProcessDocumentUseCase) Reprocess(ctx context.Context, documentID, requesterID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(doc, requesterID); err != nil {
		return nil, err
	}

	transition := ports.StatusTransition{ID: doc.ID, From: doc.Status}
	switch doc.Status {
	case domain.StatusFailed:
	case domain.StatusProcessing:
		cutoff := uc.now().Add(-uc.opts.StuckAfter)
		if doc.UpdatedAt.After(cutoff) {
			return nil, domain.WrapError(domain.ErrConflict, "reprocess document", errors.New("document is still processing"))
		}
		transition.UpdatedBefore = &cutoff
	default:
		return nil, domain.WrapError(domain.ErrConflict, "reprocess document",
			fmt.Errorf("only failed or stuck documents can be reprocessed, status is %s", doc.Status))
	}

	hasText, err := uc.texts.HasText(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("check document text: %w", err)
	}
	if !hasText && (doc.BlobKey == nil || *doc.BlobKey == "") {
		return nil, domain.NewValidationError("document", "document has no stored file to reprocess")
	}

	transition.To = domain.StatusQueued
	if hasText {
		transition.To = domain.StatusProcessing
	}
	ok, err := uc.repo.TransitionStatus(ctx, transition)
	if err != nil {
		return nil, fmt.Errorf("set status=%s: %w", transition.To, err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrConflict, "reprocess document", errors.New("document status changed concurrently"))
	}

	if hasText {
		err = uc.queue.EnqueueExtraction(ctx, domain.ExtractionJob{DocumentID: doc.ID})
	} else {
		err = uc.queue.EnqueueOCR(ctx, domain.OCRJob{DocumentID: doc.ID, BlobKey: *doc.BlobKey})
	}
	if err != nil {
		if failErr := uc.markFailed(ctx, doc.ID, fmt.Errorf("schedule reprocessing: %w", err)); failErr != nil {
			uc.logger.Error("pipeline.reprocess.mark_failed_failed", "document_id", doc.ID, "error", failErr)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "enqueue reprocess job", err)
	}

	uc.logger.Info("pipeline.reprocess.scheduled",
		"document_id", doc.ID,
		"from", string(transition.From),
		"to", string(transition.To),
		"skip_ocr", hasText,
	)
	doc.Status = transition.To
	doc.ErrorMessage = nil
	return doc, nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	if err := uc.repo.MarkFailed(ctx, documentID, failureMessage(processErr)); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("set status=failed: %w", err)
	}
	return nil
}

// failureMessage is the user-facing text stored on a failed document.
func failureMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrUnsupportedFormat):
		return "Unsupported file format: " + err.Error()
	case domain.IsKind(err, domain.ErrEmptyDocument):
		return "No readable text was found in this document: " + err.Error()
	case domain.IsKind(err, domain.ErrMalformedResponse):
		return "Could not read the extracted fields: " + err.Error()
	default:
		return err.Error()
	}
}
