// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Session represents one interview's shared editing/execution context.
// It outlives any individual connection: participants come and go, the
// session record stays until its expiry passes.
//
// The live session core only ever mutates the Language field (through the
// language-change path). Everything else is written once at creation.
type Session struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry timestamp.
// Expired sessions reject joins and executions but are never deleted here —
// cleanup belongs to the persistent store, not the live core.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Participant is one live connection's membership in one session.
// It exists only for the lifetime of the connection and is owned by the
// presence hub entry for that session. A connection that joins a second
// session produces a distinct Participant record.
type Participant struct {
	ID          string    `json:"id"`          // connection identifier
	DisplayName string    `json:"displayName"` // shown to other participants
	JoinedAt    time.Time `json:"joinedAt"`
}
