package httpmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/resilience"
)

const DefaultSendTimeout = 30 * time.Second

// Client delivers email through a Resend-compatible HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(baseURL, apiKey string, executor *resilience.Executor, logger *slog.Logger) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig().WithoutRetry())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    DefaultSendTimeout,
		httpClient: &http.Client{},
		executor:   executor,
		logger:     logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send posts one message. 4xx answers are permanent, everything else that
// fails is temporary so the queue redelivers.
func (c *Client) Send(ctx context.Context, msg domain.EmailMessage) error {
	if c.baseURL == "" || c.apiKey == "" {
		return domain.WrapError(domain.ErrPermanent, "mail send", fmt.Errorf("mail provider is not configured"))
	}

	payload := sendRequest{From: msg.From, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML}
	var out sendResponse
	err := c.executor.Execute(ctx, "mail.send", func(callCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()
		return c.post(callCtx, payload, msg.IdempotencyKey, &out)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return resilience.WrapKind("mail send", err)
	}

	c.logger.Info("mail.sent", "provider_id", out.ID, "idempotency_key", msg.IdempotencyKey)
	return nil
}

func (c *Client) post(ctx context.Context, payload sendRequest, idempotencyKey string, out *sendResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("mail", "send", resp, time.Now())
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return domain.WrapError(domain.ErrMalformedResponse, "decode mail response", err)
	}
	return nil
}
