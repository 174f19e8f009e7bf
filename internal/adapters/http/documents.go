package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

func ownerPtr(r *http.Request) *string {
	if id := userID(r); id != "" {
		return &id
	}
	return nil
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if limit := rt.cfg.APIMaxUploadBytes; limit > 0 {
		if r.ContentLength > limit {
			rt.recordUpload("rejected")
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("file exceeds %d bytes", limit)})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordUpload("rejected")
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit)})
			return
		}
		rt.recordUpload("rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(r.Context(), ports.UploadInput{
		OwnerID:  ownerPtr(r),
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		switch {
		case domain.IsKind(err, domain.ErrQuotaExceeded):
			rt.recordUpload("quota_exceeded")
		case domain.IsKind(err, domain.ErrInvalidInput):
			rt.recordUpload("rejected")
		default:
			rt.recordUpload("error")
		}
		rt.writeError(w, r, err)
		return
	}

	rt.recordUpload("accepted")
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) recordUpload(result string) {
	if rt.httpMetrics != nil {
		rt.httpMetrics.RecordUpload("api", result)
	}
}

type manualRequest struct {
	Vendor     *string      `json:"vendor"`
	EndDate    *domain.Date `json:"end_date"`
	NoticeDays *int         `json:"notice_days"`
	AutoRenews *bool        `json:"auto_renews"`
}

func (rt *Router) createManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	doc, err := rt.ingest.CreateManual(r.Context(), ports.ManualInput{
		OwnerID:    ownerPtr(r),
		Vendor:     req.Vendor,
		EndDate:    req.EndDate,
		NoticeDays: req.NoticeDays,
		AutoRenews: req.AutoRenews,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.manager.List(r.Context(), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.manager.Get(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) editDocument(w http.ResponseWriter, r *http.Request) {
	var edit domain.DocumentEdit
	if err := decodeJSON(r, &edit); err != nil {
		rt.writeError(w, r, err)
		return
	}

	doc, err := rt.manager.Edit(r.Context(), r.PathValue("id"), userID(r), edit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.manager.Delete(r.Context(), r.PathValue("id"), userID(r)); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.processor.Reprocess(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	url, err := rt.manager.DownloadURL(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (rt *Router) exportDeadlines(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := rt.exporter.ExportDeadlines(r.Context(), userID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "deadlines.xlsx"}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (rt *Router) serveFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	query := r.URL.Query()
	if !rt.files.Verify(key, query.Get("expires"), query.Get("signature")) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "link is invalid or expired"})
		return
	}

	body, err := rt.files.Get(r.Context(), key)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", domain.FormatFor("", key).MimeType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": key}))
	_, _ = io.Copy(w, body)
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}
