package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"go.uber.org/zap"
)

// Error codes carried in the "error" field of every failure body.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeSizeLimit       = "SIZE_LIMIT"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeInternal        = "INTERNAL"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// classify maps a domain error onto a status code and error code.
func classify(err error) (int, string) {
	switch {
	case upload.IsSizeLimit(err):
		return http.StatusRequestEntityTooLarge, CodeSizeLimit
	case upload.IsValidation(err), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
