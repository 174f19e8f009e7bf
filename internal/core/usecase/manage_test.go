package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

func newManageFixture(docs ...*domain.Document) (*ManageDocumentUseCase, *documentRepoFake, *blobStoreFake, *alertCheckerFake) {
	repo := newDocumentRepoFake(docs...)
	storage := newBlobStoreFake()
	alerts := &alertCheckerFake{}
	uc := NewManageDocumentUseCase(repo, storage, alerts, nil)
	uc.now = fixedClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	return uc, repo, storage, alerts
}

func readyDoc(id string) *domain.Document {
	end := domain.NewDate(2026, 9, 1)
	alerted := domain.NewDate(2026, 4, 30)
	return &domain.Document{
		ID:            id,
		OwnerID:       strPtr("owner-1"),
		BlobKey:       strPtr("blob-" + id),
		Vendor:        strPtr("Acme"),
		EndDate:       &end,
		NoticeDays:    intPtr(30),
		Status:        domain.StatusReady,
		LastAlertedOn: &alerted,
	}
}

func TestEditDeadlineClearsAlertAndRunsImmediateCheck(t *testing.T) {
	uc, repo, _, alerts := newManageFixture(readyDoc("doc-1"))

	doc, err := uc.Edit(context.Background(), "doc-1", "owner-1", domain.DocumentEdit{
		NoticeDays: domain.Some(60),
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if doc.LastAlertedOn != nil || !doc.ManualEntry || *doc.NoticeDays != 60 {
		t.Fatalf("unexpected edited document: %+v", doc)
	}
	if stored := repo.doc("doc-1"); stored.LastAlertedOn != nil {
		t.Fatalf("lastAlertedOn must be cleared in storage")
	}
	if len(alerts.checked) != 1 || alerts.checked[0] != "doc-1" {
		t.Fatalf("expected immediate check, got %v", alerts.checked)
	}
}

func TestEditWithoutDeadlineChangeSkipsCheck(t *testing.T) {
	uc, repo, _, alerts := newManageFixture(readyDoc("doc-1"))

	if _, err := uc.Edit(context.Background(), "doc-1", "", domain.DocumentEdit{Vendor: domain.Some("Acme Corp")}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(alerts.checked) != 0 {
		t.Fatalf("vendor-only edit must not trigger a check")
	}
	if repo.doc("doc-1").LastAlertedOn == nil {
		t.Fatalf("lastAlertedOn must be kept when the deadline is unchanged")
	}
}

func TestEditRejectsInFlightDocuments(t *testing.T) {
	doc := readyDoc("doc-1")
	doc.Status = domain.StatusProcessing
	uc, _, _, _ := newManageFixture(doc)

	_, err := uc.Edit(context.Background(), "doc-1", "", domain.DocumentEdit{NoticeDays: domain.Some(5)})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestEditFailedDocumentBecomesReady(t *testing.T) {
	doc := readyDoc("doc-1")
	doc.Status = domain.StatusFailed
	doc.ErrorMessage = strPtr("ocr failed")
	uc, repo, _, _ := newManageFixture(doc)

	if _, err := uc.Edit(context.Background(), "doc-1", "", domain.DocumentEdit{EndDate: domain.Some(domain.NewDate(2027, 1, 1))}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	stored := repo.doc("doc-1")
	if stored.Status != domain.StatusReady || stored.ErrorMessage != nil || !stored.ManualEntry {
		t.Fatalf("expected ready manual document, got %+v", stored)
	}
}

func TestEditValidationAndOwnership(t *testing.T) {
	uc, _, _, _ := newManageFixture(readyDoc("doc-1"))

	if _, err := uc.Edit(context.Background(), "doc-1", "", domain.DocumentEdit{NoticeDays: domain.Some(-3)}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.Edit(context.Background(), "doc-1", "intruder", domain.DocumentEdit{NoticeDays: domain.Some(3)}); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound for another owner, got %v", err)
	}
}

func TestDeleteRemovesRecordThenBlob(t *testing.T) {
	uc, repo, storage, _ := newManageFixture(readyDoc("doc-1"))

	if err := uc.Delete(context.Background(), "doc-1", "owner-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if repo.doc("doc-1") != nil {
		t.Fatalf("record must be deleted")
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != "blob-doc-1" {
		t.Fatalf("expected blob delete, got %v", storage.deleted)
	}
}

func TestDownloadURL(t *testing.T) {
	manual := readyDoc("manual")
	manual.BlobKey = nil
	uc, _, _, _ := newManageFixture(readyDoc("doc-1"), manual)

	url, err := uc.DownloadURL(context.Background(), "doc-1", "owner-1")
	if err != nil || url != "https://files.test/blob-doc-1" {
		t.Fatalf("DownloadURL() = %q, %v", url, err)
	}
	if _, err := uc.DownloadURL(context.Background(), "manual", "owner-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("manual document has no file, got %v", err)
	}
}
