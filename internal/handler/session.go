package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/language"
	"github.com/sakif/pairview/internal/model"
	"github.com/sakif/pairview/internal/repository"
)

const (
	defaultSessionTTL = 2 * time.Hour
	maxSessionTTL     = 24 * time.Hour
)

// SessionHandler owns session creation and retrieval.
type SessionHandler struct {
	sessions  repository.SessionRepository
	languages *language.Table
	logger    *slog.Logger
}

func NewSessionHandler(sessions repository.SessionRepository, languages *language.Table, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		languages: languages,
		logger:    logger,
	}
}

type createSessionRequest struct {
	Language   string `json:"language"`
	TTLMinutes int    `json:"ttlMinutes"`
}

// HandleCreate creates a new session.
//
// HTTP: POST /api/sessions
// Body: {"language": "python", "ttlMinutes": 120}
//
// Both fields are optional: language defaults to python, TTL to two
// hours. The response is the full session record including its
// generated ID and expiry.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	if req.Language == "" {
		req.Language = "python"
	}
	if _, ok := h.languages.Lookup(req.Language); !ok {
		writeError(w, apperror.ValidationFailed("language", "unsupported language: "+req.Language))
		return
	}

	ttl := defaultSessionTTL
	if req.TTLMinutes != 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
		if ttl < time.Minute || ttl > maxSessionTTL {
			writeError(w, apperror.ValidationFailed("ttlMinutes", "ttl must be between 1 minute and 24 hours"))
			return
		}
	}

	session := &model.Session{
		Language:  req.Language,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := h.sessions.Create(r.Context(), session); err != nil {
		h.logger.Error("failed to create session", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("session created",
		slog.String("sessionId", session.ID),
		slog.String("language", session.Language),
	)

	writeJSON(w, http.StatusCreated, session)
}

// HandleGet returns one session by ID.
//
// HTTP: GET /api/sessions/{id}
//
// Expired sessions are still returned — the record exists, it just no
// longer accepts joins or executions. Clients read expiresAt themselves.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.sessions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// HandleLanguages lists the supported language tags.
//
// HTTP: GET /api/languages
func (h *SessionHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": h.languages.Tags()})
}
