package hub

import "github.com/sakif/pairview/internal/model"

// Event types broadcast to session participants. These names are the
// wire contract with the editor client.
const (
	EventSessionState    = "session-state"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventRemoteCursor    = "remote-cursor"
	EventLanguageChanged = "language-changed"
)

// Event is the envelope every broadcast travels in, both to local
// WebSocket clients and across the bus between server instances.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SessionStatePayload is sent once, to a joining connection only. It is
// built from the persistent session record, so a late joiner sees a
// language change made before it connected without ever having received
// the corresponding event.
type SessionStatePayload struct {
	Session      *model.Session      `json:"session"`
	Participants []model.Participant `json:"participants"`
}

// UserJoinedPayload carries the new participant's identity plus the full
// roster after the join.
type UserJoinedPayload struct {
	ParticipantID string              `json:"participantId"`
	DisplayName   string              `json:"displayName"`
	Participants  []model.Participant `json:"participants"`
}

// UserLeftPayload carries the departed participant and the roster after
// removal.
type UserLeftPayload struct {
	ParticipantID string              `json:"participantId"`
	Participants  []model.Participant `json:"participants"`
}

// CursorPayload relays one participant's cursor to the rest of the
// session. Selection is optional — absent means a bare cursor move.
type CursorPayload struct {
	ParticipantID string         `json:"participantId"`
	Position      CursorPosition `json:"position"`
	Selection     *CursorRange   `json:"selection,omitempty"`
}

// CursorPosition is an editor coordinate.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CursorRange is an editor selection span.
type CursorRange struct {
	Start CursorPosition `json:"start"`
	End   CursorPosition `json:"end"`
}

// LanguageChangedPayload announces the session's new active language.
type LanguageChangedPayload struct {
	Language string `json:"language"`
}
