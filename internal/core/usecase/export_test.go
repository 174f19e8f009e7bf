package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type reportWriterFake struct {
	rows  []domain.DeadlineRow
	today domain.Date
}

func (f *reportWriterFake) Write(rows []domain.DeadlineRow, generatedOn domain.Date) ([]byte, error) {
	f.rows = rows
	f.today = generatedOn
	return []byte("xlsx"), nil
}

func (f *reportWriterFake) ContentType() string { return "application/test" }

func TestExportDeadlinesSortsBySoonestCancellation(t *testing.T) {
	later := readyDoc("later")
	sooner := readyDoc("sooner")
	end := domain.NewDate(2026, 5, 20)
	sooner.EndDate = &end
	unknown := readyDoc("unknown")
	unknown.EndDate = nil
	other := readyDoc("other")
	other.OwnerID = strPtr("owner-2")

	repo := newDocumentRepoFake(later, sooner, unknown, other)
	writer := &reportWriterFake{}
	uc := NewExportUseCase(repo, writer, time.UTC, nil)
	uc.now = fixedClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	out, contentType, err := uc.ExportDeadlines(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("ExportDeadlines() error = %v", err)
	}
	if string(out) != "xlsx" || contentType != "application/test" {
		t.Fatalf("unexpected output %q %q", out, contentType)
	}
	if len(writer.rows) != 3 {
		t.Fatalf("expected 3 rows for owner-1, got %d", len(writer.rows))
	}
	if writer.rows[0].DocumentID != "sooner" || writer.rows[2].DocumentID != "unknown" {
		t.Fatalf("unexpected order: %s, %s, %s", writer.rows[0].DocumentID, writer.rows[1].DocumentID, writer.rows[2].DocumentID)
	}
	if writer.rows[0].Tier != domain.UrgencyCritical || writer.rows[2].Tier != domain.UrgencyNeedsReview {
		t.Fatalf("unexpected tiers: %s, %s", writer.rows[0].Tier, writer.rows[2].Tier)
	}
}

func TestExportRequiresOwner(t *testing.T) {
	uc := NewExportUseCase(newDocumentRepoFake(), &reportWriterFake{}, nil, nil)
	if _, _, err := uc.ExportDeadlines(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type emailProviderFake struct {
	sent []domain.EmailMessage
	err  error
}

func (f *emailProviderFake) Send(_ context.Context, msg domain.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestEmailDeliveryUsesJobIDAsIdempotencyKey(t *testing.T) {
	provider := &emailProviderFake{}
	uc := NewEmailDeliveryUseCase(provider, "alerts@example.com", nil)

	err := uc.Deliver(context.Background(), domain.EmailJob{ID: "alert-1", To: "a@example.com", Subject: "s", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(provider.sent) != 1 || provider.sent[0].IdempotencyKey != "alert-1" || provider.sent[0].From != "alerts@example.com" {
		t.Fatalf("unexpected sent messages: %+v", provider.sent)
	}
}

func TestEmailDeliveryRejectsIncompleteJobPermanently(t *testing.T) {
	uc := NewEmailDeliveryUseCase(&emailProviderFake{}, "alerts@example.com", nil)
	if err := uc.Deliver(context.Background(), domain.EmailJob{ID: "x"}); !domain.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestEmailDeliveryPropagatesProviderErrors(t *testing.T) {
	provider := &emailProviderFake{err: domain.WrapError(domain.ErrTemporary, "mail send", errors.New("502"))}
	uc := NewEmailDeliveryUseCase(provider, "alerts@example.com", nil)
	err := uc.Deliver(context.Background(), domain.EmailJob{ID: "x", To: "a@example.com", Subject: "s"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
