// Package hub tracks which participants are connected to which session
// and broadcasts membership and state changes to them.
//
// The hub is an explicit, constructed instance with clear ownership —
// whatever serves connections receives it as a dependency. No
// process-wide registry maps: tests create as many hubs as they like
// without cross-contamination, and a multi-instance deployment attaches
// a Bus so instances relay each other's events.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pairview/internal/apperror"
	"github.com/sakif/pairview/internal/model"
)

// Conn is one live client connection as the hub sees it. Send must not
// block — the WebSocket layer backs it with a buffered channel and drops
// the connection when the buffer fills.
type Conn interface {
	ID() string
	Send(event Event)
}

// SessionService is what the hub needs from the coordinator: read the
// persistent session record and persist language changes. Joining and
// language changes consult the record; nothing else here touches
// storage.
type SessionService interface {
	Session(ctx context.Context, sessionID string) (*model.Session, error)
	SetLanguage(ctx context.Context, sessionID, language string) error
}

// room is one session's live membership. All mutations of a room happen
// under its lock, which serializes events per session (the ordering
// guarantee) while leaving different sessions fully parallel.
type room struct {
	mu           sync.Mutex
	conns        map[string]Conn
	participants map[string]*model.Participant
}

// Hub is the presence registry for one server instance.
type Hub struct {
	id       string // instance id, used for bus de-duplication
	sessions SessionService
	logger   *slog.Logger
	now      func() time.Time

	// mu guards rooms and byConn. Where a path needs both this lock and
	// a room's, this one comes first.
	mu    sync.RWMutex
	rooms map[string]*room
	// byConn tracks which sessions each connection joined, for Leave.
	byConn map[string]map[string]struct{}

	bus Bus
}

// New creates a Hub with local-only broadcast. Attach a Bus for
// multi-instance deployments.
func New(sessions SessionService, logger *slog.Logger) *Hub {
	return &Hub{
		id:       xid.New().String(),
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		rooms:    make(map[string]*room),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// AttachBus wires cross-node fan-out: every local mutation is also
// published, and received messages are relayed to local connections.
// Messages this hub originated come back from the channel and are
// dropped by origin id, so local participants never see an event twice.
func (h *Hub) AttachBus(b Bus) {
	h.bus = b
	b.Start(func(msg Message) {
		if msg.Origin == h.id {
			return
		}
		h.deliverLocal(msg.SessionID, msg.Event, msg.Exclude)
	})
}

// Join registers a connection as a participant of a session.
//
// The joining connection alone receives `session-state` built from the
// persistent record; then `user-joined` (with the full roster) goes to
// every participant of the session including the joiner. Both happen
// under the room lock, so everyone already joined observes this join
// before any later event from the same connection.
func (h *Hub) Join(ctx context.Context, sessionID string, conn Conn, displayName string) error {
	session, err := h.sessions.Session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("hub: joining session: %w", err)
	}
	if session.Expired(h.now()) {
		return apperror.Expired("session", sessionID)
	}

	// Lock order is registry before room, same as Leave's empty-room
	// cleanup. Taking the room lock before releasing the registry lock
	// also keeps the cleanup from reaping the room between registration
	// and the membership insert below.
	h.mu.Lock()
	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{
			conns:        make(map[string]Conn),
			participants: make(map[string]*model.Participant),
		}
		h.rooms[sessionID] = r
	}
	if h.byConn[conn.ID()] == nil {
		h.byConn[conn.ID()] = make(map[string]struct{})
	}
	h.byConn[conn.ID()][sessionID] = struct{}{}
	r.mu.Lock()
	h.mu.Unlock()
	defer r.mu.Unlock()

	participant := &model.Participant{
		ID:          conn.ID(),
		DisplayName: displayName,
		JoinedAt:    h.now(),
	}
	r.conns[conn.ID()] = conn
	r.participants[conn.ID()] = participant

	roster := rosterLocked(r)

	conn.Send(Event{
		Type:      EventSessionState,
		SessionID: sessionID,
		Payload:   SessionStatePayload{Session: session, Participants: roster},
	})

	h.broadcastLocked(r, sessionID, Event{
		Type:      EventUserJoined,
		SessionID: sessionID,
		Payload: UserJoinedPayload{
			ParticipantID: participant.ID,
			DisplayName:   participant.DisplayName,
			Participants:  roster,
		},
	}, "")

	return nil
}

// Cursor relays a cursor move to the rest of the session, excluding the
// sender — echoing a client's own cursor back is pure noise. Unknown
// membership is reported so the transport can surface a protocol error.
func (h *Hub) Cursor(sessionID, connID string, position CursorPosition, selection *CursorRange) error {
	r, ok := h.lookupRoom(sessionID)
	if !ok {
		return apperror.NotFound("session presence", sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.participants[connID]; !member {
		return apperror.ValidationFailed("sessionId", "connection has not joined this session")
	}

	h.broadcastLocked(r, sessionID, Event{
		Type:      EventRemoteCursor,
		SessionID: sessionID,
		Payload: CursorPayload{
			ParticipantID: connID,
			Position:      position,
			Selection:     selection,
		},
	}, connID)

	return nil
}

// ChangeLanguage persists the session's new language and then announces
// it to everyone in the session, sender included — unlike cursors, the
// sender also needs the authoritative confirmation, and the write
// happens first so a late joiner's session-state reflects it.
func (h *Hub) ChangeLanguage(ctx context.Context, sessionID, connID, lang string) error {
	r, ok := h.lookupRoom(sessionID)
	if !ok {
		return apperror.NotFound("session presence", sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.participants[connID]; !member {
		return apperror.ValidationFailed("sessionId", "connection has not joined this session")
	}

	if err := h.sessions.SetLanguage(ctx, sessionID, lang); err != nil {
		return fmt.Errorf("hub: changing language: %w", err)
	}

	h.broadcastLocked(r, sessionID, Event{
		Type:      EventLanguageChanged,
		SessionID: sessionID,
		Payload:   LanguageChangedPayload{Language: lang},
	}, "")

	return nil
}

// Leave removes a connection from every session it joined — the
// disconnect path, explicit or abrupt. Each affected session gets a
// `user-left` with its recomputed roster; a session whose roster empties
// has its live state released (the persistent record is untouched).
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	sessionIDs := h.byConn[connID]
	delete(h.byConn, connID)
	h.mu.Unlock()

	for sessionID := range sessionIDs {
		r, ok := h.lookupRoom(sessionID)
		if !ok {
			continue
		}

		r.mu.Lock()
		delete(r.conns, connID)
		delete(r.participants, connID)
		empty := len(r.participants) == 0
		if !empty {
			h.broadcastLocked(r, sessionID, Event{
				Type:      EventUserLeft,
				SessionID: sessionID,
				Payload: UserLeftPayload{
					ParticipantID: connID,
					Participants:  rosterLocked(r),
				},
			}, "")
		}
		r.mu.Unlock()

		if empty {
			h.mu.Lock()
			// Re-check under the registry lock; someone may have joined
			// between releasing the room lock and getting here.
			if rr, ok := h.rooms[sessionID]; ok {
				rr.mu.Lock()
				if len(rr.participants) == 0 {
					delete(h.rooms, sessionID)
				}
				rr.mu.Unlock()
			}
			h.mu.Unlock()
		}
	}
}

// Participants returns a session's current roster, join order first.
func (h *Hub) Participants(sessionID string) []model.Participant {
	r, ok := h.lookupRoom(sessionID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rosterLocked(r)
}

func (h *Hub) lookupRoom(sessionID string) (*room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[sessionID]
	return r, ok
}

// broadcastLocked enqueues an event to every local connection of the
// room (minus the excluded one) and publishes it to the bus when one is
// attached. Callers hold the room lock, which is what keeps one
// session's events in mutation order.
func (h *Hub) broadcastLocked(r *room, sessionID string, event Event, exclude string) {
	for id, conn := range r.conns {
		if id == exclude {
			continue
		}
		conn.Send(event)
	}

	if h.bus != nil {
		msg := Message{Origin: h.id, SessionID: sessionID, Exclude: exclude, Event: event}
		if err := h.bus.Publish(context.Background(), msg); err != nil {
			h.logger.Error("failed to publish presence event to bus",
				slog.String("sessionId", sessionID),
				slog.String("event", event.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

// deliverLocal relays a bus message to this instance's connections of
// the session. Unlike broadcastLocked it takes the room lock itself and
// never re-publishes.
func (h *Hub) deliverLocal(sessionID string, event Event, exclude string) {
	r, ok := h.lookupRoom(sessionID)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.conns {
		if id == exclude {
			continue
		}
		conn.Send(event)
	}
}

// rosterLocked snapshots the participant set sorted by join time (ties
// broken by id so the order is stable).
func rosterLocked(r *room) []model.Participant {
	roster := make([]model.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		roster = append(roster, *p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].ID < roster[j].ID
		}
		return roster[i].JoinedAt.Before(roster[j].JoinedAt)
	})
	return roster
}
