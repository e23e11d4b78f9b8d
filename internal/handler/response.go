package handler

// Every error response has the same shape:
//
//	{"error": "not_found", "message": "recipe not found with id ...", "field": "..."}
//
// "field" is only present for validation errors on a specific input.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input, if any
}

// okResponse acknowledges a delete.
type okResponse struct {
	OK bool `json:"ok"`
}

// writeJSON sends data with the given status. Headers must be set before
// the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are gone already; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status. Errors that are not
// an *apperror.AppError are logged and reported as a generic 500 so no
// storage detail reaches the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an internal error occurred",
		})
		return
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="recipebox"`)
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field})
}

// decodeJSON reads the request body into dst. Malformed bodies are
// validation errors; bodies over the server's size limit are 413.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: "request body is too large",
		})
		return false
	case errors.Is(err, io.EOF):
		writeError(w, logger, apperror.ValidationFailed("", "request body is required"))
	case errors.As(err, &typeErr):
		writeError(w, logger, apperror.ValidationFailed(typeErr.Field, "has the wrong type"))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		writeError(w, logger, apperror.ValidationFailed(field, "unknown field"))
	default:
		writeError(w, logger, apperror.ValidationFailed("", "request body is not valid JSON"))
	}
	return false
}
