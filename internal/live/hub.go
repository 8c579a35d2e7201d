// Package live pushes session snapshots to browser tabs over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/coder/websocket"
)

const (
	sendQueueSize = 16
	writeTimeout  = 10 * time.Second
)

// Event is an outbound WebSocket message.
type Event struct {
	Type     string              `json:"type"`
	Snapshot *interview.Snapshot `json:"snapshot,omitempty"`
}

type client struct {
	id   int64
	key  interview.Key
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(status, reason)
	})
}

// Hub tracks WebSocket connections per tab session. Several connections may
// share one key (the same tab ID opened twice).
type Hub struct {
	mu     sync.RWMutex
	active map[interview.Key]map[int64]*client
	nextID int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[interview.Key]map[int64]*client)}
}

// Attach subscribes the hub to every session the registry seeds and keeps
// sessions with an open connection from being swept. Snapshots of a session
// that was reset away are not forwarded.
func (h *Hub) Attach(reg *interview.Registry) {
	reg.KeepAlive(func(key interview.Key) bool {
		return h.Count(key) > 0
	})
	reg.OnCreate(func(key interview.Key, s *interview.Session) {
		s.Subscribe(func(snap interview.Snapshot) {
			if reg.Get(key) != s {
				return
			}
			h.Publish(key, snap)
		})
	})
}

func (h *Hub) register(key interview.Key, conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	c := &client{
		id:   h.nextID,
		key:  key,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	if _, exists := h.active[key]; !exists {
		h.active[key] = make(map[int64]*client)
	}
	h.active[key][c.id] = c
	slog.Info("Live connection registered", "user_id", key.UserID, "tab_id", key.TabID, "conn_id", c.id)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[c.key]; ok {
		if _, exists := conns[c.id]; exists {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.active, c.key)
			}
			slog.Info("Live connection unregistered", "user_id", c.key.UserID, "tab_id", c.key.TabID, "conn_id", c.id)
		}
	}
}

// Count returns the number of connections for key.
func (h *Hub) Count(key interview.Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[key])
}

// Publish queues a snapshot for every connection of key. A connection whose
// queue is full is closed rather than allowed to stall the session.
func (h *Hub) Publish(key interview.Key, snap interview.Snapshot) {
	data, err := json.Marshal(Event{Type: "snapshot", Snapshot: &snap})
	if err != nil {
		slog.Error("Failed to marshal snapshot event", "error", err)
		return
	}

	// Snapshot connections to avoid holding the lock while sending.
	h.mu.RLock()
	conns := make([]*client, 0, len(h.active[key]))
	for _, c := range h.active[key] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("Live connection too slow, closing", "user_id", c.key.UserID, "conn_id", c.id)
		c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

// Close terminates every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, conns := range h.active {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("Live write failed", "error", err, "conn_id", c.id)
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
