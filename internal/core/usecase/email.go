package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

// EmailDeliveryUseCase consumes the email queue.
type EmailDeliveryUseCase struct {
	provider ports.EmailProvider
	from     string
	logger   *slog.Logger
}

func NewEmailDeliveryUseCase(provider ports.EmailProvider, from string, logger *slog.Logger) *EmailDeliveryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailDeliveryUseCase{provider: provider, from: from, logger: logger}
}

func (uc *EmailDeliveryUseCase) Deliver(ctx context.Context, job domain.EmailJob) error {
	if strings.TrimSpace(job.To) == "" || strings.TrimSpace(job.Subject) == "" {
		return domain.WrapError(domain.ErrPermanent, "deliver email", fmt.Errorf("email job %q is missing recipient or subject", job.ID))
	}
	err := uc.provider.Send(ctx, domain.EmailMessage{
		From:           uc.from,
		To:             job.To,
		Subject:        job.Subject,
		HTML:           job.HTML,
		IdempotencyKey: job.ID,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	uc.logger.Info("email.delivered", "email_id", job.ID, "document_id", job.DocumentID)
	return nil
}
