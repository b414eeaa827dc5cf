package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sakif/pairview/internal/hub"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	// maxMessageSize bounds inbound frames. Cursor and control messages
	// are tiny; anything larger is a misbehaving client.
	maxMessageSize = 4096

	sendBuffer = 256
)

// client is one WebSocket connection. It satisfies hub.Conn, so the hub
// can push events to it without knowing about WebSockets.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan hub.Event
	hub    *hub.Hub
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, h *hub.Hub, logger *slog.Logger) *client {
	return &client{
		id:     xid.New().String(),
		conn:   conn,
		send:   make(chan hub.Event, sendBuffer),
		hub:    h,
		logger: logger,
	}
}

func (c *client) ID() string { return c.id }

// Send enqueues an event for delivery. It never blocks: a client that
// cannot drain its buffer loses events rather than stalling the session
// it shares with others. The write deadline will eventually close a
// connection that stopped reading.
func (c *client) Send(event hub.Event) {
	select {
	case c.send <- event:
	default:
		c.logger.Warn("dropping event for slow websocket client",
			slog.String("connId", c.id),
			slog.String("event", event.Type),
		)
	}
}

// readPump reads frames from the connection until it drops, dispatching
// each parsed message. It owns connection teardown: on exit the client
// leaves every session it joined.
func (c *client) readPump() {
	defer func() {
		c.hub.Leave(c.id)
		c.conn.Close()
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					slog.String("connId", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.handleMessage(raw)
	}
}

// writePump serializes all writes to the connection: queued events plus
// keepalive pings. gorilla/websocket allows one concurrent writer, which
// is why nothing else touches conn.Write*.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one parsed client message. Failures become
// error events on this connection; the session carries on for everyone
// else.
func (c *client) handleMessage(raw []byte) {
	payload, err := parseClientMessage(raw)
	if err != nil {
		c.Send(errorEvent(CodeInvalidMessage, err.Error()))
		return
	}

	switch p := payload.(type) {
	case *JoinSessionPayload:
		if p.DisplayName == "" {
			p.DisplayName = "Anonymous"
		}
		if err := c.hub.Join(context.Background(), p.SessionID, c, p.DisplayName); err != nil {
			c.Send(errorEvent(errorCode(err), err.Error()))
		}

	case *CursorChangePayload:
		if err := c.hub.Cursor(p.SessionID, c.id, p.Position, p.Selection); err != nil {
			c.Send(errorEvent(errorCode(err), err.Error()))
		}

	case *LanguageChangePayload:
		if err := c.hub.ChangeLanguage(context.Background(), p.SessionID, c.id, p.Language); err != nil {
			c.Send(errorEvent(errorCode(err), err.Error()))
		}
	}
}
