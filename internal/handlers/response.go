package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the response shape shared by every API route
type envelope struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Data       any    `json:"data,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response",
			slog.String("error", err.Error()))
	}
}

func respondData(w http.ResponseWriter, logger *slog.Logger, data any) {
	respondJSON(w, logger, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	respondJSON(w, logger, status, envelope{Success: false, Error: message})
}

// NotFound answers unknown routes with the error envelope
func NotFound(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, logger, http.StatusNotFound, "Not found")
	})
}
