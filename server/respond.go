package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/glassdesk/relay/logger"
	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/stream"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps relay sentinel errors onto HTTP statuses. Unmatched
// errors are logged and reported as a bare 500; internals stay internal.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrClientNotFound), errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "client not found")
	case errors.Is(err, stream.ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, "no chunk data provided")
	case errors.Is(err, stream.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid chunk payload")
	case errors.Is(err, stream.ErrNoData):
		writeError(w, http.StatusNotFound, "no stream data available")
	case errors.Is(err, stream.ErrNoSession):
		writeError(w, http.StatusNotFound, "no active stream session")
	case errors.Is(err, stream.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many chunks")
	case errors.Is(err, registry.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, "invalid registration")
	default:
		logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
