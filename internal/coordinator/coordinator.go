// Package coordinator is the business layer in front of code execution.
//
// It owns the order of precondition checks, the static routing decision
// between the local sandbox and the remote gateway, and the best-effort
// history write. It knows nothing about HTTP or WebSockets: handlers
// parse and translate its domain errors, this layer decides,
// repositories persist.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/language"
	"github.com/sakif/pairview/internal/model"
	"github.com/sakif/pairview/internal/repository"
)

// MaxCodeChars is the default submitted-source ceiling. Configurable per
// deployment; the value lands in validation error messages so clients
// know the limit they hit.
const MaxCodeChars = 50000

// Coordinator validates, routes and records execution requests.
type Coordinator struct {
	sessions     repository.SessionRepository
	history      repository.HistoryRepository
	languages    *language.Table
	local        executor.Executor // nil when no local sandbox runtime exists
	remote       executor.Executor
	maxCodeChars int
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Coordinator. Either executor may be nil when the
// deployment lacks that path; a request routed to a missing path fails
// with an unavailable error rather than probing alternatives — routing
// is static per-language configuration, not a per-request decision.
func New(
	sessions repository.SessionRepository,
	history repository.HistoryRepository,
	languages *language.Table,
	local, remote executor.Executor,
	maxCodeChars int,
	logger *slog.Logger,
) *Coordinator {
	if maxCodeChars <= 0 {
		maxCodeChars = MaxCodeChars
	}
	return &Coordinator{
		sessions:     sessions,
		history:      history,
		languages:    languages,
		local:        local,
		remote:       remote,
		maxCodeChars: maxCodeChars,
		logger:       logger,
		now:          time.Now,
	}
}

// Submit runs one execution request end to end.
//
// Preconditions are checked in order, each short-circuiting with its own
// failure: the session must exist and not be expired, the code must be
// non-empty and under the size ceiling, the language must be supported.
// Only then does anything get provisioned.
func (c *Coordinator) Submit(ctx context.Context, sessionID, code, langTag string) (*executor.Result, error) {
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: loading session: %w", err)
	}
	if session.Expired(c.now()) {
		return nil, apperror.Expired("session", sessionID)
	}

	if code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	// The ceiling is in characters, not bytes; multi-byte source must
	// not hit the limit early.
	if utf8.RuneCountInString(code) > c.maxCodeChars {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code exceeds the maximum length of %d characters", c.maxCodeChars))
	}

	// An omitted language means "whatever the session is set to".
	if langTag == "" {
		langTag = session.Language
	}
	lang, ok := c.languages.Lookup(langTag)
	if !ok {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("unsupported language %q", langTag))
	}

	exec := c.remote
	if lang.Route == language.RouteLocal {
		exec = c.local
	}
	if exec == nil {
		return nil, apperror.Unavailable(
			fmt.Sprintf("no execution path configured for language %q", langTag))
	}

	result, err := exec.Execute(ctx, executor.Request{
		SessionID: sessionID,
		Code:      code,
		Language:  langTag,
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, session.ID, langTag, code, result)

	return result, nil
}

// record writes the history entry for a completed run. Best-effort by
// contract: the submitting client gets their result even when the
// history store is down, so failures here are only logged.
func (c *Coordinator) record(ctx context.Context, sessionID, langTag, code string, result *executor.Result) {
	record := &model.ExecutionRecord{
		SessionID:  sessionID,
		Language:   langTag,
		Code:       code,
		Status:     string(result.Status),
		Output:     result.Output,
		Error:      result.Error,
		DurationMs: result.Duration.Milliseconds(),
	}
	if err := c.history.Record(ctx, record); err != nil {
		c.logger.Error("failed to record execution history",
			slog.String("sessionId", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// SetLanguage validates and persists a session's language change. The
// presence hub calls this BEFORE broadcasting `language-changed`, so a
// late joiner's initial state read always reflects the change.
func (c *Coordinator) SetLanguage(ctx context.Context, sessionID, langTag string) error {
	if _, ok := c.languages.Lookup(langTag); !ok {
		return apperror.ValidationFailed("language",
			fmt.Sprintf("unsupported language %q", langTag))
	}

	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("coordinator: loading session: %w", err)
	}
	if session.Expired(c.now()) {
		return apperror.Expired("session", sessionID)
	}

	if err := c.sessions.UpdateLanguage(ctx, sessionID, langTag); err != nil {
		return fmt.Errorf("coordinator: updating language: %w", err)
	}
	return nil
}

// Session loads a session record, enforcing existence but not expiry —
// reads of expired sessions are allowed (the record is still useful),
// joins and executions against them are not.
func (c *Coordinator) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	return c.sessions.GetByID(ctx, sessionID)
}

// History returns a session's recent execution records.
func (c *Coordinator) History(ctx context.Context, sessionID string, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	if _, err := c.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("coordinator: loading session: %w", err)
	}
	return c.history.ListBySession(ctx, sessionID, opts)
}
