package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/coordinator"
	"github.com/sakif/pairview/internal/repository"
)

// ExecuteHandler handles code execution and execution history.
type ExecuteHandler struct {
	coord  *coordinator.Coordinator
	logger *slog.Logger
}

func NewExecuteHandler(coord *coordinator.Coordinator, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{coord: coord, logger: logger}
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// executeResponse is the wire shape of an execution outcome. Duration is
// reported in milliseconds under the name the frontend displays.
type executeResponse struct {
	Status          string `json:"status"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	ExitCode        int    `json:"exitCode"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// HandleExecute runs submitted code in the session's context.
//
// HTTP: POST /api/sessions/{id}/execute
// Body: {"code": "print(1)", "language": "python"}
//
// Every completed run answers 200 regardless of how the program fared:
// a non-zero exit or a timeout is a result the candidate sees, not an
// API failure. Error statuses are reserved for requests the platform
// refused (bad session, oversized code, capacity) — those go through
// writeError.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.coord.Submit(r.Context(), sessionID, req.Code, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Status:          string(result.Status),
		Output:          result.Output,
		Error:           result.Error,
		ExitCode:        result.ExitCode,
		ExecutionTimeMs: result.Duration.Milliseconds(),
	})
}

// HandleHistory lists a session's past executions, newest first.
//
// HTTP: GET /api/sessions/{id}/executions?limit=20&offset=0
func (h *ExecuteHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	opts := repository.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("offset", "offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	records, err := h.coord.History(r.Context(), sessionID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
