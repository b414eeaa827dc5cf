// Package handler contains the HTTP handlers for the session API.
//
// Handlers parse and validate the HTTP surface, delegate to the
// coordinator, and translate domain errors into status codes. They
// never touch storage or Docker directly.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/pairview/internal/apperror"
)

// ErrorResponse is the error shape every API endpoint returns:
//
//	{"error": "not_found", "message": "session not found with id abc123"}
//
// One shape for all failures keeps the frontend's error handling to a
// single code path.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response. Headers and status must be written
// before the body; Encode writes the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError translates a domain error into an HTTP status. The
// business layers return apperror sentinels; this is the single place
// they become status codes, so nothing below the handlers knows HTTP.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrExpired):
			status = http.StatusGone
			errorType = "session_expired"
		case errors.Is(err, apperror.ErrCapacity):
			status = http.StatusServiceUnavailable
			errorType = "capacity"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
			errorType = "unavailable"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error: generic 500. The raw message may contain paths or
	// SQL and must not reach the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
