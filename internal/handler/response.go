package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/splitbill/internal/models"
	"github.com/mmynk/splitbill/internal/service"
	"github.com/mmynk/splitbill/internal/validator"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is so wrapped sentinel errors are matched. Messages of 500 and 502 errors
// are logged, not exposed.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		resp = errorResponse{Error: "Validation failed", Fields: ve.Fields}
	case len(validator.FormatValidationErrors(err)) > 0:
		resp = errorResponse{Error: "Validation failed", Fields: validator.FormatValidationErrors(err)}
	case status == http.StatusBadGateway:
		slog.Warn("Remote service failed", "error", err)
		resp.Error = "Remote service unavailable"
	case status == http.StatusInternalServerError:
		slog.Error("Request failed", "error", err)
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var ve *service.ValidationError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge // 413
	case errors.Is(err, validator.ErrInvalidJSON):
		return http.StatusBadRequest // 400
	case errors.As(err, &ve), len(validator.FormatValidationErrors(err)) > 0:
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, models.ErrFriendNotFound), errors.Is(err, models.ErrSplitNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, models.ErrOverAssigned):
		return http.StatusConflict // 409
	case errors.Is(err, models.ErrInvalidDraft), errors.Is(err, service.ErrInvalidFriend):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, models.ErrRemoteUnavailable):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
