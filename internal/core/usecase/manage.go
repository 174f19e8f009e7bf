package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

const downloadURLTTL = 15 * time.Minute

type ManageDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.BlobStore
	alerts  ports.AlertChecker
	logger  *slog.Logger
	now     func() time.Time
}

func NewManageDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.BlobStore,
	alerts ports.AlertChecker,
	logger *slog.Logger,
) *ManageDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManageDocumentUseCase{
		repo:    repo,
		storage: storage,
		alerts:  alerts,
		logger:  logger,
		now:     time.Now,
	}
}

func (uc *ManageDocumentUseCase) Get(ctx context.Context, id, requesterID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(doc, requesterID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (uc *ManageDocumentUseCase) List(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("owner_id", "is required")
	}
	return uc.repo.ListByOwner(ctx, ownerID)
}

// Edit applies a manual patch. A deadline change clears the alert marker
// and runs the immediate check once the update is stored.
func (uc *ManageDocumentUseCase) Edit(ctx context.Context, id, requesterID string, edit domain.DocumentEdit) (*domain.Document, error) {
	if err := edit.Validate(); err != nil {
		return nil, err
	}
	doc, err := uc.Get(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if doc.Status.InFlight() {
		return nil, domain.WrapError(domain.ErrConflict, "edit document",
			fmt.Errorf("document is %s, wait for processing to finish", doc.Status))
	}

	deadlineChanged := edit.Apply(doc)
	doc.Status = domain.StatusReady
	doc.ErrorMessage = nil
	doc.UpdatedAt = uc.now().UTC()
	if err := uc.repo.SaveEdits(ctx, doc); err != nil {
		return nil, fmt.Errorf("save edits: %w", err)
	}

	if deadlineChanged && doc.HasDeadline() && uc.alerts != nil {
		alerted, err := uc.alerts.CheckDocument(ctx, doc.ID)
		if err != nil {
			uc.logger.Warn("documents.edit.immediate_check_failed", "document_id", doc.ID, "error", err)
		} else if alerted {
			if refreshed, err := uc.repo.GetByID(ctx, doc.ID); err == nil {
				doc = refreshed
			}
		}
	}
	return doc, nil
}

// Delete removes the record first; the blob is removed best effort.
func (uc *ManageDocumentUseCase) Delete(ctx context.Context, id, requesterID string) error {
	doc, err := uc.Get(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if doc.BlobKey != nil && *doc.BlobKey != "" {
		if err := uc.storage.Delete(ctx, *doc.BlobKey); err != nil {
			uc.logger.Warn("documents.delete.blob_failed", "document_id", doc.ID, "blob_key", *doc.BlobKey, "error", err)
		}
	}
	uc.logger.Info("documents.deleted", "document_id", doc.ID)
	return nil
}

func (uc *ManageDocumentUseCase) DownloadURL(ctx context.Context, id, requesterID string) (string, error) {
	doc, err := uc.Get(ctx, id, requesterID)
	if err != nil {
		return "", err
	}
	if doc.BlobKey == nil || *doc.BlobKey == "" {
		return "", domain.WrapError(domain.ErrDocumentNotFound, "download document", errors.New("document has no stored file"))
	}
	url, err := uc.storage.PresignedURL(ctx, *doc.BlobKey, downloadURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// authorize hides documents of other owners. Empty requester means trusted caller.
func authorize(doc *domain.Document, requesterID string) error {
	if requesterID == "" {
		return nil
	}
	if doc.OwnerID == nil || *doc.OwnerID != requesterID {
		return domain.WrapError(domain.ErrDocumentNotFound, "authorize", fmt.Errorf("document %s", doc.ID))
	}
	return nil
}
