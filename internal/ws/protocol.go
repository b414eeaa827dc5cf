// Package ws is the WebSocket transport for live sessions. It upgrades
// connections, parses the client protocol, and bridges each connection
// into the presence hub.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/hub"
)

// Client → server message types.
const (
	TypeJoinSession    = "join-session"
	TypeCursorChange   = "cursor-change"
	TypeLanguageChange = "language-change"
)

// EventError is the server → client event wrapping an ErrorPayload. The
// hub's own event types cover everything else the client receives.
const EventError = "error"

// Error codes carried in error events.
const (
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeInternal        = "INTERNAL"
)

// ClientMessage is the envelope for all client → server messages.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinSessionPayload struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

type CursorChangePayload struct {
	SessionID string             `json:"sessionId"`
	Position  hub.CursorPosition `json:"position"`
	Selection *hub.CursorRange   `json:"selection,omitempty"`
}

type LanguageChangePayload struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
}

// ErrorPayload is the payload of error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseClientMessage validates a raw frame and returns the decoded
// payload: *JoinSessionPayload, *CursorChangePayload or
// *LanguageChangePayload. Envelope and per-type required fields are
// checked here, and the dispatcher acts on the struct returned here, so
// there is exactly one decode of each frame.
func parseClientMessage(raw []byte) (any, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	switch msg.Type {
	case TypeJoinSession:
		var p JoinSessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
		return &p, nil

	case TypeCursorChange:
		var p CursorChangePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
		if p.Position.Line < 0 || p.Position.Column < 0 {
			return nil, fmt.Errorf("cursor position must be non-negative in %s payload", msg.Type)
		}
		return &p, nil

	case TypeLanguageChange:
		var p LanguageChangePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
		if p.Language == "" {
			return nil, fmt.Errorf("missing required field 'language' in %s payload", msg.Type)
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// errorEvent wraps a code and message as a sendable hub event.
func errorEvent(code, message string) hub.Event {
	return hub.Event{
		Type:    EventError,
		Payload: ErrorPayload{Code: code, Message: message},
	}
}

// errorCode maps hub and service errors onto protocol error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return CodeSessionNotFound
	case errors.Is(err, apperror.ErrExpired):
		return CodeSessionExpired
	case errors.Is(err, apperror.ErrValidation):
		return CodeInvalidMessage
	default:
		return CodeInternal
	}
}
