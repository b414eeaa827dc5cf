package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sakif/pairview/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The editor frontend is served from arbitrary dev origins.
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket connections and hands
// them to the hub.
type Handler struct {
	hub    *hub.Hub
	logger *slog.Logger
}

func NewHandler(h *hub.Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: h, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, h.hub, h.logger)

	h.logger.Debug("websocket connected", slog.String("connId", c.id))

	go c.writePump()
	go c.readPump()
}
