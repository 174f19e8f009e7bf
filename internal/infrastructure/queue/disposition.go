// Package queue holds the delivery rules shared by the broker adapters.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type Disposition int

const (
	Ack Disposition = iota
	Retry
	Terminate
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// ErrQueueClosed is returned by consumers after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// Decide maps a handler result to what the broker should do with the
// delivery. Permanent errors and exhausted attempts are terminated.
func Decide(err error, attempt, maxAttempts int) Disposition {
	if err == nil {
		return Ack
	}
	if domain.IsPermanent(err) {
		return Terminate
	}
	if maxAttempts > 0 && attempt >= maxAttempts {
		return Terminate
	}
	return Retry
}

const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 5 * time.Minute
)

// Backoff is the redelivery delay after the given failed attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Subject is the broker subject of a queue, e.g. "documents.ocr".
func Subject(prefix string, queue domain.QueueName) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return string(queue)
	}
	return fmt.Sprintf("%s.%s", prefix, queue)
}
