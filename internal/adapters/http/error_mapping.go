package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Tier   string            `json:"tier,omitempty"`
	Limit  *int              `json:"limit,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error, status int) errorResponse {
	if status == http.StatusInternalServerError {
		return errorResponse{Error: "internal error"}
	}
	body := errorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Fields = verr.Fields
	}
	var quota *domain.QuotaExceededError
	if errors.As(err, &quota) {
		body.Tier = quota.Tier
		limit := quota.Limit
		body.Limit = &limit
	}
	return body
}
