package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

func TestDecide(t *testing.T) {
	temporary := domain.WrapError(domain.ErrTemporary, "op", errors.New("503"))
	malformed := domain.WrapError(domain.ErrMalformedResponse, "op", errors.New("bad json"))

	tests := []struct {
		name        string
		err         error
		attempt     int
		maxAttempts int
		want        Disposition
	}{
		{name: "success", err: nil, attempt: 1, maxAttempts: 5, want: Ack},
		{name: "temporary first attempt", err: temporary, attempt: 1, maxAttempts: 5, want: Retry},
		{name: "temporary last attempt", err: temporary, attempt: 5, maxAttempts: 5, want: Terminate},
		{name: "unclassified error", err: errors.New("boom"), attempt: 2, maxAttempts: 5, want: Retry},
		{name: "permanent", err: malformed, attempt: 1, maxAttempts: 5, want: Terminate},
		{name: "unbounded", err: temporary, attempt: 100, maxAttempts: 0, want: Retry},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.err, tc.attempt, tc.maxAttempts); got != tc.want {
				t.Fatalf("Decide() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	if Backoff(1) != 2*time.Second || Backoff(2) != 4*time.Second || Backoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff sequence: %s %s %s", Backoff(1), Backoff(2), Backoff(3))
	}
	if Backoff(30) != 5*time.Minute {
		t.Fatalf("expected cap, got %s", Backoff(30))
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("documents.", domain.QueueOCR); got != "documents.ocr" {
		t.Fatalf("Subject() = %q", got)
	}
	if got := Subject("", domain.QueueEmail); got != "email" {
		t.Fatalf("Subject() = %q", got)
	}
}
