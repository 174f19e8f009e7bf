package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/observability/metrics"
)

// userIDHeader carries the caller identity set by the upstream gateway.
const userIDHeader = "X-User-Id"

const backpressureWait = 250 * time.Millisecond

type documentReprocessor interface {
	Reprocess(ctx context.Context, documentID, requesterID string) (*domain.Document, error)
}

// SignedFileStore serves locally stored blobs behind signed links.
type SignedFileStore interface {
	Verify(key, expires, signature string) bool
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type Router struct {
	cfg         config.Config
	ingest      ports.DocumentIngestor
	processor   documentReprocessor
	manager     ports.DocumentManager
	exporter    ports.DeadlineExporter
	files       SignedFileStore
	httpMetrics *metrics.HTTPServerMetrics
	logger      *slog.Logger
}

type RouterOption func(*Router)

// WithFileStore mounts GET /files/{key} for signed local downloads.
func WithFileStore(files SignedFileStore) RouterOption {
	return func(rt *Router) { rt.files = files }
}

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.httpMetrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	processor documentReprocessor,
	manager ports.DocumentManager,
	exporter ports.DeadlineExporter,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:       cfg,
		ingest:    ingest,
		processor: processor,
		manager:   manager,
		exporter:  exporter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.httpMetrics != nil {
		mux.Handle("GET /metrics", rt.httpMetrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("POST /v1/documents/manual", rt.createManual)
	mux.HandleFunc("GET /v1/documents/export.xlsx", rt.exportDeadlines)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("PATCH /v1/documents/{id}", rt.editDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	mux.HandleFunc("GET /v1/documents/{id}/download", rt.downloadDocument)
	if rt.files != nil {
		mux.HandleFunc("GET /files/{key}", rt.serveFile)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http.handler.failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody(err, status))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
