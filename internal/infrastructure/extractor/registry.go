package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

// Registry dispatches raw file bytes to the extractor registered for their format.
type Registry struct {
	byFormat map[domain.Format]ports.TextExtractor
}

func NewRegistry() *Registry {
	return &Registry{byFormat: make(map[domain.Format]ports.TextExtractor)}
}

func (r *Registry) Register(format domain.Format, extractor ports.TextExtractor) *Registry {
	if extractor != nil {
		r.byFormat[format] = extractor
	}
	return r
}

func (r *Registry) Extract(ctx context.Context, format domain.Format, data []byte) (string, error) {
	extractor, ok := r.byFormat[format]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("no extractor for format %q", format))
	}
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrEmptyDocument, "extract text", fmt.Errorf("empty %s file", format))
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrEmptyDocument, "extract text", fmt.Errorf("no text found in %s file", format))
	}
	return text, nil
}
