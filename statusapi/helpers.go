package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON serializes payload to JSON and writes it with the given status
// code, centralizing the header-then-status-then-body ordering every
// handler needs. Falls back to a plain error body if encoding fails, which
// should not happen with the statically typed response shapes in this
// package.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)
	w.Write(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, statusCode int, message string, logger *slog.Logger) {
	logger.Error("statusapi: request error", "status", statusCode, "message", message)
	writeJSON(w, statusCode, map[string]string{"error": message})
}
