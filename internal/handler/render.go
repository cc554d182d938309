package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/proptly/mediaflow/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError maps the pipeline error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrTransferTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrConfiguration), errors.Is(err, apperr.ErrStorage):
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	} else {
		slog.Warn("request rejected", "error", err, "method", r.Method, "path", r.URL.Path, "status", status)
	}

	respondJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
