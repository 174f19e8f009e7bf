package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

func noBackoff(int) time.Duration { return 0 }

func consumeUntil(t *testing.T, q *Queue, name domain.QueueName, handler ports.JobHandler, done <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Consume(ctx, name, handler) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for deliveries")
	}
}

func TestPublishAndConsume(t *testing.T) {
	q := New(Options{Backoff: noBackoff})
	defer q.Close()

	if err := q.EnqueueOCR(context.Background(), domain.OCRJob{DocumentID: "doc-1", BlobKey: "k"}); err != nil {
		t.Fatalf("EnqueueOCR() error = %v", err)
	}

	done := make(chan struct{})
	var got domain.OCRJob
	consumeUntil(t, q, domain.QueueOCR, func(_ context.Context, d ports.Delivery) error {
		if err := json.Unmarshal(d.Payload, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if d.Attempt != 1 || d.Queue != domain.QueueOCR {
			t.Errorf("unexpected delivery: %+v", d)
		}
		close(done)
		return nil
	}, done)

	if got.DocumentID != "doc-1" || got.BlobKey != "k" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestRetriesUntilMaxDeliver(t *testing.T) {
	q := New(Options{MaxDeliver: 3, Backoff: noBackoff})
	defer q.Close()
	_ = q.EnqueueExtraction(context.Background(), domain.ExtractionJob{DocumentID: "doc-1"})

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})
	consumeUntil(t, q, domain.QueueExtract, func(_ context.Context, d ports.Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, d.Attempt)
		if d.Attempt == 3 {
			close(done)
		}
		return domain.WrapError(domain.ErrTemporary, "extract", errors.New("llm down"))
	}, done)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Fatalf("expected exactly 3 attempts, got %v", attempts)
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	q := New(Options{MaxDeliver: 5, Backoff: noBackoff})
	defer q.Close()
	_ = q.EnqueueExtraction(context.Background(), domain.ExtractionJob{DocumentID: "doc-1"})

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	consumeUntil(t, q, domain.QueueExtract, func(context.Context, ports.Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			close(done)
		}
		return domain.WrapError(domain.ErrMalformedResponse, "extract", errors.New("not json"))
	}, done)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single delivery, got %d", calls)
	}
}

func TestEmailJobsAreDeduplicatedByID(t *testing.T) {
	q := New(Options{Backoff: noBackoff})
	defer q.Close()

	job := domain.EmailJob{ID: "alert-doc-1-2026-06-01", To: "a@example.com"}
	for i := 0; i < 3; i++ {
		if err := q.EnqueueEmail(context.Background(), job); err != nil {
			t.Fatalf("EnqueueEmail() error = %v", err)
		}
	}
	if n := len(q.channels[domain.QueueEmail]); n != 1 {
		t.Fatalf("expected one queued email, got %d", n)
	}
}

func TestPublishAfterCloseIsTemporary(t *testing.T) {
	q := New(Options{})
	q.Close()
	err := q.EnqueueOCR(context.Background(), domain.OCRJob{DocumentID: "doc-1"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestEmailDedupExpiresAfterWindow(t *testing.T) {
	q := New(Options{Backoff: noBackoff, DedupWindow: time.Minute})
	defer q.Close()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	job := domain.EmailJob{ID: "alert-doc-1", To: "a@example.com"}
	_ = q.EnqueueEmail(context.Background(), job)
	now = now.Add(2 * time.Minute)
	_ = q.EnqueueEmail(context.Background(), job)

	if n := len(q.channels[domain.QueueEmail]); n != 2 {
		t.Fatalf("expected the id to be publishable again after the window, got %d queued", n)
	}
	if len(q.seenIDs) != 1 {
		t.Fatalf("expired ids must be pruned, %d remembered", len(q.seenIDs))
	}
}

func TestFailedPublishDoesNotConsumeEmailID(t *testing.T) {
	q := New(Options{Backoff: noBackoff, Buffer: 1})
	defer q.Close()
	_ = q.EnqueueEmail(context.Background(), domain.EmailJob{ID: "filler", To: "a@example.com"})

	job := domain.EmailJob{ID: "alert-doc-1", To: "a@example.com"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.EnqueueEmail(ctx, job); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary on a full buffer, got %v", err)
	}

	<-q.channels[domain.QueueEmail]
	if err := q.EnqueueEmail(context.Background(), job); err != nil {
		t.Fatalf("retry EnqueueEmail() error = %v", err)
	}
	if n := len(q.channels[domain.QueueEmail]); n != 1 {
		t.Fatalf("retried email must be queued, got %d", n)
	}
}
