package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alanta/DevOpsReleaseReport/internal/repository"
	"github.com/alanta/DevOpsReleaseReport/internal/service/report"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps core errors onto responses without exposing upstream detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, report.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, "not supported")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
}
