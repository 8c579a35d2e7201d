package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/interview-chat/internal/identity"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/coder/websocket"
)

// inbound is a client WebSocket message.
type inbound struct {
	Type string `json:"type"`
}

// Handler upgrades /ws/interview and streams snapshots of the caller's tab
// session.
type Handler struct {
	hub           *Hub
	registry      *interview.Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, registry *interview.Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := interview.Key{
		UserID: identity.UserIDFromContext(r.Context()),
		TabID:  identity.TabIDFromContext(r.Context()),
	}
	if key.UserID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", key.UserID)
		return
	}

	c := h.hub.register(key, ws)
	defer h.hub.unregister(c)
	defer c.close(websocket.StatusNormalClosure, "session ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.hub.writeLoop(ctx, c)

	snap := h.registry.GetOrCreate(key).Snapshot()
	h.hub.enqueue(c, mustMarshal(Event{Type: "snapshot", Snapshot: &snap}))

	h.readLoop(ctx, c)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, c *client) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", c.key.UserID, "conn_id", c.id)
			} else if ctx.Err() == nil {
				slog.Debug("WebSocket read ended", "error", err, "user_id", c.key.UserID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Ignoring malformed WebSocket message", "user_id", c.key.UserID)
			continue
		}

		switch msg.Type {
		case "ping":
			h.hub.enqueue(c, mustMarshal(Event{Type: "pong"}))
		case "sync":
			snap := h.registry.GetOrCreate(c.key).Snapshot()
			h.hub.enqueue(c, mustMarshal(Event{Type: "snapshot", Snapshot: &snap}))
		}
	}
}

func mustMarshal(ev Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		panic("live: marshal event: " + err.Error())
	}
	return data
}
