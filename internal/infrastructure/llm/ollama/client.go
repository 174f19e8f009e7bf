package ollama

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(baseURL, genModel string, executor *resilience.Executor, logger *slog.Logger) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{},
		executor:   executor,
		logger:     logger,
	}
}

// generateJSON asks the model for a single JSON object. Deadlines come from ctx.
func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
		},
	}

	var out string
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate"); err != nil {
			return err
		}
		out = strings.TrimSpace(response.Response)
		return nil
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", domain.WrapError(domain.ErrProvider, "ollama", resilience.WrapKind("ollama generate", err))
	}
	return out, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
