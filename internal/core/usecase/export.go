package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

type ExportUseCase struct {
	repo     ports.DocumentRepository
	writer   ports.DeadlineReportWriter
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewExportUseCase(repo ports.DocumentRepository, writer ports.DeadlineReportWriter, location *time.Location, logger *slog.Logger) *ExportUseCase {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportUseCase{repo: repo, writer: writer, location: location, logger: logger, now: time.Now}
}

// ExportDeadlines renders the owner's documents, soonest cancellation first.
func (uc *ExportUseCase) ExportDeadlines(ctx context.Context, ownerID string) ([]byte, string, error) {
	if ownerID == "" {
		return nil, "", domain.NewValidationError("owner_id", "is required")
	}
	start := uc.now()
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}

	today := domain.DateOf(uc.now().In(uc.location))
	rows := make([]domain.DeadlineRow, 0, len(docs))
	for i := range docs {
		rows = append(rows, domain.NewDeadlineRow(&docs[i], today))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].DaysLeftToCancel, rows[j].DaysLeftToCancel
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	out, err := uc.writer.Write(rows, today)
	if err != nil {
		return nil, "", fmt.Errorf("write deadline report: %w", err)
	}
	uc.logger.Info("export.deadlines.ok",
		"owner_id", ownerID,
		"rows", len(rows),
		"elapsed_ms", uc.now().Sub(start).Milliseconds(),
	)
	return out, uc.writer.ContentType(), nil
}
