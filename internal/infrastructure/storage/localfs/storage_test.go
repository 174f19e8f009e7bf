package localfs

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), "http://localhost:8080", "secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "1-contract.pdf", strings.NewReader("%PDF-1.4"), domain.MimePDF); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rc, err := s.Get(ctx, "1-contract.pdf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", raw)
	}

	if err := s.Delete(ctx, "1-contract.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "1-contract.pdf"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, "1-contract.pdf"); err != nil {
		t.Fatalf("deleting a missing blob must succeed, got %v", err)
	}
}

func TestPutNeverOverwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("first"), ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("second"), ""); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Put(context.Background(), "../escape", strings.NewReader("x"), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPresignedURLRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	link, err := s.PresignedURL(context.Background(), "1-contract.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/files/1-contract.pdf" {
		t.Fatalf("unexpected path %q", u.Path)
	}
	q := u.Query()
	if !s.Verify("1-contract.pdf", q.Get("expires"), q.Get("signature")) {
		t.Fatalf("signature must verify")
	}
	if s.Verify("other.pdf", q.Get("expires"), q.Get("signature")) {
		t.Fatalf("signature must be bound to the key")
	}

	s.now = func() time.Time { return time.Date(2026, 6, 1, 12, 16, 0, 0, time.UTC) }
	if s.Verify("1-contract.pdf", q.Get("expires"), q.Get("signature")) {
		t.Fatalf("expired link must not verify")
	}
}
