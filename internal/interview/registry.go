package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key identifies a tab session of an anonymous device.
type Key struct {
	UserID string
	TabID  string
}

// String returns the key in log form.
func (k Key) String() string {
	return k.UserID + ":" + k.TabID
}

// Registry holds the live sessions of the web view. Sessions exist only in
// memory and disappear on Reset or when swept as idle.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[Key]*Session
	onCreate  func(Key, *Session)
	keepAlive func(Key) bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Key]*Session)}
}

// OnCreate sets a hook called for every newly seeded session. It must be set
// before the registry is shared.
func (r *Registry) OnCreate(fn func(Key, *Session)) {
	r.onCreate = fn
}

// KeepAlive sets a hook that exempts a key from sweeping, for example while
// a page still shows its transcript. It must be set before the registry is
// shared. Sweep calls it without holding the registry lock.
func (r *Registry) KeepAlive(fn func(Key) bool) {
	r.keepAlive = fn
}

// Get returns the session for key, or nil.
func (r *Registry) Get(key Key) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[key]
}

// GetOrCreate returns the session for key, seeding a new one on first use.
func (r *Registry) GetOrCreate(key Key) *Session {
	if s := r.Get(key); s != nil {
		return s
	}

	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok {
		s = NewSession(uuid.NewString())
		r.sessions[key] = s
	}
	r.mu.Unlock()

	if !ok {
		slog.Info("Interview session created", "user_id", key.UserID, "tab_id", key.TabID, "session_id", s.ID())
		if r.onCreate != nil {
			r.onCreate(key, s)
		}
	}
	return s
}

// Reset discards the session for key and seeds a fresh one. A reply still in
// flight for the old session is resolved against the discarded session.
func (r *Registry) Reset(key Key) *Session {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
	slog.Info("Interview session reset", "user_id", key.UserID, "tab_id", key.TabID)
	return r.GetOrCreate(key)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than ttl. Sessions awaiting a reply
// and sessions the keep-alive hook claims are kept regardless of age.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	// Sessions are inspected without r.mu held: their listeners may call
	// back into the registry.
	r.mu.RLock()
	candidates := make(map[Key]*Session, len(r.sessions))
	for key, s := range r.sessions {
		candidates[key] = s
	}
	keepAlive := r.keepAlive
	r.mu.RUnlock()

	var stale []Key
	for key, s := range candidates {
		if !s.idleBefore(cutoff) {
			continue
		}
		if keepAlive != nil && keepAlive(key) {
			continue
		}
		stale = append(stale, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, key := range stale {
		if r.sessions[key] != candidates[key] {
			continue
		}
		delete(r.sessions, key)
		removed++
	}
	return removed
}

// StartSweeper runs a background goroutine that periodically sweeps idle
// sessions until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if removed := r.Sweep(ttl); removed > 0 {
					slog.Info("Session sweeper removed idle sessions", "count", removed, "remaining", r.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
