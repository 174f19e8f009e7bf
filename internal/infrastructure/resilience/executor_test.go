package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "service unavailable", err: &HTTPStatusError{StatusCode: 503}, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "rate limited", err: &HTTPStatusError{StatusCode: 429}, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "bad request", err: &HTTPStatusError{StatusCode: 400}, want: ErrorClassification{}},
		{name: "canceled", err: context.Canceled, want: ErrorClassification{}},
		{name: "timeout", err: context.DeadlineExceeded, want: ErrorClassification{RecordFailure: true}},
		{name: "open breaker", err: gobreaker.ErrOpenState, want: ErrorClassification{Retryable: true, RecordFailure: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTP(tc.err); got != tc.want {
				t.Fatalf("ClassifyHTTP() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWrapKind(t *testing.T) {
	if err := WrapKind("op", &HTTPStatusError{StatusCode: 502}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary for 502, got %v", err)
	}
	if err := WrapKind("op", &HTTPStatusError{StatusCode: 422}); !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent for 422, got %v", err)
	}
	if err := WrapKind("op", context.DeadlineExceeded); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary for timeout, got %v", err)
	}
	malformed := domain.WrapError(domain.ErrMalformedResponse, "op", errors.New("bad json"))
	if err := WrapKind("op", malformed); err != malformed {
		t.Fatalf("classified errors must pass through, got %v", err)
	}
}

func TestWithoutRetryMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false}.WithoutRetry())
	attempts := 0
	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errors.New("temporary")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

type observerFake struct {
	retries []string
	states  []string
}

func (o *observerFake) ObserveRetry(operation string) { o.retries = append(o.retries, operation) }

func (o *observerFake) ObserveBreakerState(operation, state string) {
	o.states = append(o.states, operation+":"+state)
}

func TestExecuteReportsRetriesAndBreakerState(t *testing.T) {
	obs := &observerFake{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        2,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		BreakerEnabled:          true,
		BreakerMinRequests:      1,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}).WithObserver(obs)

	_ = exec.Execute(context.Background(), "mail.send", func(context.Context) error {
		return &HTTPStatusError{StatusCode: 503}
	}, ClassifyHTTP)

	if len(obs.retries) != 1 || obs.retries[0] != "mail.send" {
		t.Fatalf("unexpected retries %v", obs.retries)
	}
	if len(obs.states) != 1 || obs.states[0] != "mail.send:open" {
		t.Fatalf("unexpected breaker states %v", obs.states)
	}
}

func TestExecuteHonoursRetryAfterUpToCap(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryAfterMax:       30 * time.Millisecond,
		BreakerEnabled:      false,
	})

	attempts := 0
	start := time.Now()
	err := exec.Execute(context.Background(), "ocr.batch", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return &HTTPStatusError{StatusCode: 429, RetryAfter: time.Hour}
		}
		return nil
	}, ClassifyHTTP)
	elapsed := time.Since(start)

	if err != nil || attempts != 2 {
		t.Fatalf("expected success on second attempt, err=%v attempts=%d", err, attempts)
	}
	if elapsed < 30*time.Millisecond || elapsed > 5*time.Second {
		t.Fatalf("expected the capped Retry-After wait, elapsed %s", elapsed)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]time.Duration{
		"":                              0,
		"7":                             7 * time.Second,
		"-1":                            0,
		"soon":                          0,
		"Mon, 01 Jun 2026 12:00:30 GMT": 30 * time.Second,
		"Mon, 01 Jun 2026 11:00:00 GMT": 0,
	}
	for in, want := range tests {
		if got := ParseRetryAfter(in, now); got != want {
			t.Fatalf("ParseRetryAfter(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestPoliciesKeepQueueOwnedRetriesSingleShot(t *testing.T) {
	if got := MailPolicy().RetryMaxAttempts; got != 1 {
		t.Fatalf("mail policy attempts = %d, want 1", got)
	}
	if got := OCRPolicy().RetryMaxAttempts; got != 2 {
		t.Fatalf("ocr policy attempts = %d, want 2", got)
	}
}
