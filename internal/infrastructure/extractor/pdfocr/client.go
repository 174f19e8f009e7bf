package pdfocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/resilience"
)

const (
	DefaultPagesPerBatch = 5
	DefaultBatchTimeout  = 120 * time.Second
	DefaultMaxPages      = 400
)

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	PagesPerBatch int
	BatchTimeout  time.Duration
	MaxPages      int
}

// Client sends PDFs to a hosted OCR API a few pages at a time.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PagesPerBatch <= 0 {
		cfg.PagesPerBatch = DefaultPagesPerBatch
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "mistral-ocr-latest"
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		executor:   executor,
		logger:     logger,
	}
}

// Extract runs OCR batch by batch and joins the batches with the page-break
// marker. It stops at a short batch, at the page cap, or when the API rejects
// a page range after at least one batch succeeded.
func (c *Client) Extract(ctx context.Context, data []byte) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" || c.cfg.BaseURL == "" {
		return "", domain.WrapError(domain.ErrPermanent, "ocr extract", errors.New("ocr api is not configured"))
	}

	limit := c.cfg.MaxPages
	if pages, err := countPages(data); err != nil {
		c.logger.Warn("ocr.page_count.failed", "error", err, "max_pages", limit)
	} else if pages > 0 {
		limit = min(pages, limit)
	}

	documentURL := "data:" + domain.MimePDF + ";base64," + base64.StdEncoding.EncodeToString(data)
	batches := make([]string, 0, (limit+c.cfg.PagesPerBatch-1)/c.cfg.PagesPerBatch)

	for start := 0; start < limit; start += c.cfg.PagesPerBatch {
		pages := pageRange(start, min(start+c.cfg.PagesPerBatch, limit))

		resp, err := c.processBatch(ctx, documentURL, pages)
		if err != nil {
			if start > 0 && isRangeRejection(err) {
				c.logger.Info("ocr.batch.range_rejected", "first_page", start, "error", err)
				break
			}
			return "", resilience.WrapKind("ocr batch", err)
		}

		if text := resp.text(); text != "" {
			batches = append(batches, text)
		}
		if len(resp.Pages) < len(pages) {
			break
		}
	}

	text := strings.TrimSpace(strings.Join(batches, domain.PageBreakMarker))
	if text == "" {
		return "", domain.WrapError(domain.ErrEmptyDocument, "ocr extract", errors.New("ocr returned no text"))
	}
	return text, nil
}

func (c *Client) processBatch(ctx context.Context, documentURL string, pages []int) (*ocrResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	request := ocrRequest{
		Model: c.cfg.Model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: documentURL,
		},
		Pages: pages,
	}

	var response ocrResponse
	err := c.executor.Execute(ctx, "ocr.process", func(callCtx context.Context) error {
		response = ocrResponse{}
		return c.postJSON(callCtx, "/v1/ocr", request, &response, "process")
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return reader.NumPage(), nil
}

func pageRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func isRangeRejection(err error) bool {
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && !resilience.IsRetryableHTTPStatus(statusErr.StatusCode)
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
	Pages    []int       `json:"pages"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

func (r *ocrResponse) text() string {
	parts := make([]string, 0, len(r.Pages))
	for _, page := range r.Pages {
		if text := strings.TrimSpace(page.Markdown); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
