package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentTextNotFound = errors.New("document text not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("conflict")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrTemporary            = errors.New("temporary failure")
	ErrPermanent            = errors.New("permanent failure")

	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyDocument     = errors.New("empty document")
	ErrMalformedResponse = errors.New("malformed response")
	ErrProvider          = errors.New("provider error")
	ErrAlertSend         = errors.New("alert send failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrInvalidInput)
}

// ValidationError carries field-level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// QuotaExceededError is returned when an owner already holds Limit documents.
type QuotaExceededError struct {
	Tier  string
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("document limit reached for %s tier (%d documents)", e.Tier, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
