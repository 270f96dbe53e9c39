package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
)

type ErrorResponse struct {
	Error string          `json:"error"`
	Code  enlistment.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// writeRejection maps a rejected transition to 409. Anything else is a
// server error.
func writeRejection(w http.ResponseWriter, logger *slog.Logger, err error) {
	var te *enlistment.TransitionError
	if errors.As(err, &te) {
		writeJSON(w, logger, http.StatusConflict, ErrorResponse{Error: te.Error(), Code: te.Code})
		return
	}
	logger.Error("Request failed", "error", err)
	writeError(w, logger, http.StatusInternalServerError, "Internal server error")
}
