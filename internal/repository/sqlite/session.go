package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/model"
	"github.com/sakif/pairview/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` verifies at compile time that *DB implements the
// repository interfaces — a missing method fails the build here instead
// of at some distant call site.
var _ repository.SessionRepository = (*DB)(nil)

// Create inserts a new session. The ID is generated here with xid —
// 20 chars, URL-safe, sortable by creation time.
func (db *DB) Create(ctx context.Context, session *model.Session) error {
	session.ID = xid.New().String()
	session.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, language, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		session.ID,
		session.Language,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", err)
	}

	return nil
}

// GetByID retrieves a single session by its ID.
// sql.ErrNoRows is translated to the app's NotFound error so the handler
// knows to return 404 — callers never see database/sql sentinels.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, language, created_at, expires_at
		 FROM sessions
		 WHERE id = ?`,
		id,
	).Scan(
		&session.ID,
		&session.Language,
		&session.CreatedAt,
		&session.ExpiresAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	return &session, nil
}

// UpdateLanguage persists a language change. This is the ONLY mutation
// the live core performs on a session record — everything else about a
// session is owned by whoever created it.
//
// RowsAffected distinguishes "no such session" from a successful no-op
// update, same pattern as the rest of this package.
func (db *DB) UpdateLanguage(ctx context.Context, id, lang string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET language = ? WHERE id = ?`,
		lang,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating session %s language: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("session", id)
	}

	return nil
}
