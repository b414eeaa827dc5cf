package model

import "time"

// ExecutionRecord is the immutable history entry written after every
// completed run, successful or not. The transient request itself is never
// persisted — only this record, tagged with the originating session.
type ExecutionRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Language   string    `json:"language"`
	Code       string    `json:"code"` // verbatim submitted source
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"executionTimeMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
