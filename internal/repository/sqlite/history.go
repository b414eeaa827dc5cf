package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pairview/internal/model"
	"github.com/sakif/pairview/internal/repository"
)

var _ repository.HistoryRepository = (*DB)(nil)

// Record inserts one immutable execution record. Records are never
// updated or deleted by the core — they are the audit trail of what ran
// in an interview.
func (db *DB) Record(ctx context.Context, record *model.ExecutionRecord) error {
	record.ID = xid.New().String()
	record.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO executions (id, session_id, language, code, status, output, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Language,
		record.Code,
		record.Status,
		record.Output,
		record.Error,
		record.DurationMs,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording execution: %w", err)
	}

	return nil
}

// ListBySession returns a session's execution records, newest first.
func (db *DB) ListBySession(ctx context.Context, sessionID string, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20 // Default page size
	}
	if limit > 100 {
		limit = 100 // Maximum page size — prevent fetching entire DB
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, session_id, language, code, status, output, error, duration_ms, created_at
		 FROM executions
		 WHERE session_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		sessionID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	// sql.Rows holds a pool connection until closed — never skip this.
	defer rows.Close()

	records := make([]model.ExecutionRecord, 0, limit)

	for rows.Next() {
		var r model.ExecutionRecord
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Language, &r.Code, &r.Status,
			&r.Output, &r.Error, &r.DurationMs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		records = append(records, r)
	}

	// rows.Err() catches errors that happened DURING iteration
	// (connection dropping mid-read and the like).
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}

	return records, nil
}
