package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

type AlertOptions struct {
	// Location defines "today" for deadline math.
	Location *time.Location
	// BatchSize is the keyset page size of the sweep.
	BatchSize int
	// CatchUp also alerts documents whose last boundary passed unalerted.
	CatchUp bool
	// AppBaseURL links alert emails back to the document.
	AppBaseURL string
}

type AlertUseCase struct {
	repo     ports.DocumentRepository
	users    ports.UserDirectory
	email    ports.EmailSender
	notifier ports.InAppNotifier
	opts     AlertOptions
	logger   *slog.Logger
	now      func() time.Time
}

func NewAlertUseCase(
	repo ports.DocumentRepository,
	users ports.UserDirectory,
	email ports.EmailSender,
	notifier ports.InAppNotifier,
	opts AlertOptions,
	logger *slog.Logger,
) *AlertUseCase {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	opts.AppBaseURL = strings.TrimRight(opts.AppBaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertUseCase{
		repo:     repo,
		users:    users,
		email:    email,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

func (uc *AlertUseCase) today() domain.Date {
	return domain.DateOf(uc.now().In(uc.opts.Location))
}

// Sweep evaluates every ready document with a deadline. One document's
// failure is logged and counted; the sweep continues.
func (uc *AlertUseCase) Sweep(ctx context.Context) (ports.SweepSummary, error) {
	today := uc.today()
	var summary ports.SweepSummary
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch, err := uc.repo.ListAlertCandidates(ctx, afterID, uc.opts.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("list alert candidates: %w", err)
		}
		for i := range batch {
			doc := &batch[i]
			summary.Scanned++
			alerted, err := uc.evaluate(ctx, doc, today, uc.sweepRule(today, doc))
			switch {
			case err != nil:
				summary.Failed++
				uc.logger.Error("alerts.sweep.document_failed", "document_id", doc.ID, "error", err)
			case alerted:
				summary.Alerted++
			default:
				summary.Skipped++
			}
		}
		if len(batch) < uc.opts.BatchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	uc.logger.Info("alerts.sweep.completed",
		"today", today.String(),
		"scanned", summary.Scanned,
		"alerted", summary.Alerted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (uc *AlertUseCase) sweepRule(today domain.Date, doc *domain.Document) func(int) bool {
	return func(left int) bool {
		if domain.ShouldAlertOnSweep(left) {
			return true
		}
		return uc.opts.CatchUp && domain.MissedBoundary(left, doc.LastAlertedOn, today)
	}
}

// CheckDocument is the immediate check after an edit.
func (uc *AlertUseCase) CheckDocument(ctx context.Context, documentID string) (bool, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc.Status != domain.StatusReady {
		return false, nil
	}
	return uc.evaluate(ctx, doc, uc.today(), domain.ShouldAlertOnEdit)
}

func (uc *AlertUseCase) evaluate(ctx context.Context, doc *domain.Document, today domain.Date, rule func(int) bool) (bool, error) {
	urgency := domain.UrgencyOf(doc, today)
	if urgency.DaysLeftToCancel == nil {
		return false, nil
	}
	if !rule(*urgency.DaysLeftToCancel) || domain.AlreadyAlerted(doc.LastAlertedOn, today) {
		return false, nil
	}
	if doc.OwnerID == nil {
		uc.logger.Info("alerts.skipped", "document_id", doc.ID, "reason", "document has no owner")
		return false, nil
	}

	user, err := uc.users.GetUser(ctx, *doc.OwnerID)
	if err != nil {
		if domain.IsKind(err, domain.ErrUserNotFound) {
			uc.logger.Warn("alerts.skipped", "document_id", doc.ID, "reason", "owner not found")
			return false, nil
		}
		return false, fmt.Errorf("load owner: %w", err)
	}
	if strings.TrimSpace(user.Email) == "" {
		uc.logger.Warn("alerts.skipped", "document_id", doc.ID, "reason", "owner has no email")
		return false, nil
	}

	msg := buildAlertMessage(doc, urgency, uc.documentURL(doc.ID))
	html, err := renderAlertEmail(user.Name, msg)
	if err != nil {
		return false, fmt.Errorf("render alert email: %w", err)
	}
	job := domain.EmailJob{
		// One id per alert decision: broker and provider retries of this send
		// collapse, a later alert the same day after an edit does not.
		ID:         fmt.Sprintf("alert-%s-%s-%s", doc.ID, today.String(), uuid.NewString()),
		DocumentID: doc.ID,
		To:         user.Email,
		Subject:    msg.Subject,
		HTML:       html,
	}
	if err := uc.email.SendEmail(ctx, job); err != nil {
		return false, domain.WrapError(domain.ErrAlertSend, "send alert email", err)
	}

	docID := doc.ID
	if err := uc.notifier.CreateInAppNotification(ctx, domain.Notification{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		DocumentID: &docID,
		Type:       domain.NotificationRenewalDeadline,
		Title:      msg.Title,
		Message:    msg.Text,
		CreatedAt:  uc.now().UTC(),
	}); err != nil {
		uc.logger.Warn("alerts.in_app_failed", "document_id", doc.ID, "error", err)
	}

	if _, err := uc.repo.SetLastAlertedOn(ctx, doc.ID, today); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("record alert date: %w", err)
	}
	doc.LastAlertedOn = &today

	uc.logger.Info("alerts.sent",
		"document_id", doc.ID,
		"tier", string(urgency.Tier),
		"days_left_to_cancel", *urgency.DaysLeftToCancel,
	)
	return true, nil
}

func (uc *AlertUseCase) documentURL(id string) string {
	if uc.opts.AppBaseURL == "" {
		return ""
	}
	return uc.opts.AppBaseURL + "/documents/" + id
}

// QueuedEmailSender publishes alert emails on the email queue.
type QueuedEmailSender struct {
	queue ports.JobQueue
}

func NewQueuedEmailSender(queue ports.JobQueue) *QueuedEmailSender {
	return &QueuedEmailSender{queue: queue}
}

func (s *QueuedEmailSender) SendEmail(ctx context.Context, job domain.EmailJob) error {
	if strings.TrimSpace(job.To) == "" {
		return domain.NewValidationError("to", "recipient is required")
	}
	return s.queue.EnqueueEmail(ctx, job)
}
