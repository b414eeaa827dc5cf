package repository

import (
	"context"

	"github.com/sakif/pairview/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// SessionRepository is the core's boundary with the persistent session
// store. Sessions are created and deleted elsewhere; the live core reads
// them, checks expiry, and mutates exactly one field — the language,
// through the language-change path.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	UpdateLanguage(ctx context.Context, id, language string) error
}

// HistoryRepository stores immutable execution records. Record is called
// after every completed run; a failure here must never block the result
// from reaching the submitting client.
type HistoryRepository interface {
	Record(ctx context.Context, record *model.ExecutionRecord) error
	ListBySession(ctx context.Context, sessionID string, opts ListOptions) ([]model.ExecutionRecord, error)
}
