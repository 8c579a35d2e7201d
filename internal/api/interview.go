package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/interview-chat/internal/identity"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxSubmitBodySize bounds a submission request body (64KB).
const maxSubmitBodySize = 64 << 10

// SubmitRequest is the body of POST /api/interview/messages.
type SubmitRequest struct {
	Text string `json:"text"`
}

// SnapshotResponse wraps a session snapshot, with an error code on rejection.
type SnapshotResponse struct {
	Error    string             `json:"error,omitempty"`
	Snapshot interview.Snapshot `json:"snapshot"`
}

// InterviewHandler serves the tab sessions of the web view.
type InterviewHandler struct {
	registry  *interview.Registry
	processor interviewer.Processor
	limiter   func(http.Handler) http.Handler
	// baseCtx outlives requests so closing a tab does not cancel its turn.
	baseCtx context.Context

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewInterviewHandler creates the handler. ctx bounds every interviewer call
// and should be cancelled at shutdown. limiter may be nil.
func NewInterviewHandler(ctx context.Context, registry *interview.Registry, processor interviewer.Processor, limiter func(http.Handler) http.Handler) *InterviewHandler {
	if limiter == nil {
		limiter = func(next http.Handler) http.Handler { return next }
	}
	return &InterviewHandler{
		registry:  registry,
		processor: processor,
		limiter:   limiter,
		baseCtx:   ctx,
	}
}

// RegisterRoutes registers interview routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/interview", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.With(h.limiter).Post("/messages", h.Submit)
		r.Post("/reset", h.Reset)
	})
}

// Close stops accepting turns and blocks until every accepted turn has been
// resolved.
func (h *InterviewHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.inflight.Wait()
}

// acquire reserves an in-flight slot, or reports false once closed.
func (h *InterviewHandler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.inflight.Add(1)
	return true
}

func sessionKey(r *http.Request) (interview.Key, bool) {
	key := interview.Key{
		UserID: identity.UserIDFromContext(r.Context()),
		TabID:  identity.TabIDFromContext(r.Context()),
	}
	return key, key.UserID != ""
}

// GetSession returns the caller's tab session, seeding it on first use.
func (h *InterviewHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, SnapshotResponse{Snapshot: h.registry.GetOrCreate(key).Snapshot()})
}

// Submit accepts a user turn. The reply is resolved in the background and
// pushed over the live connection; with ?wait=true the response carries the
// resolved snapshot instead.
func (h *InterviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodySize)
	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request_too_large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	session := h.registry.GetOrCreate(key)
	if !h.acquire() {
		JSON(w, http.StatusServiceUnavailable, SnapshotResponse{Error: "shutting_down", Snapshot: session.Snapshot()})
		return
	}

	turn, err := session.Begin(req.Text)
	if err != nil {
		h.inflight.Done()
		status, code := rejection(err)
		slog.Info("Interview submission rejected",
			"user_id", key.UserID,
			"tab_id", key.TabID,
			"reason", code,
		)
		JSON(w, status, SnapshotResponse{Error: code, Snapshot: session.Snapshot()})
		return
	}

	slog.Info("Interview submission accepted",
		"user_id", key.UserID,
		"tab_id", key.TabID,
		"session_id", session.ID(),
		"turn_id", turn.ID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Text),
	)

	if r.URL.Query().Get("wait") == "true" {
		h.resolve(session, turn)
		JSON(w, http.StatusOK, SnapshotResponse{Snapshot: session.Snapshot()})
		return
	}

	// Snapshot before the resolver starts so the response shows the pending state.
	snap := session.Snapshot()
	go h.resolve(session, turn)
	JSON(w, http.StatusAccepted, SnapshotResponse{Snapshot: snap})
}

// Reset discards the caller's transcript and seeds a new session.
func (h *InterviewHandler) Reset(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, SnapshotResponse{Snapshot: h.registry.Reset(key).Snapshot()})
}

func (h *InterviewHandler) resolve(session *interview.Session, turn *interview.Turn) {
	defer h.inflight.Done()
	reply, err := h.processor.Next(h.baseCtx, turn.Request)
	session.Resolve(turn, reply, err)
}

func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, interview.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, interview.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, interview.ErrConcluded):
		return http.StatusConflict, "interview_over"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
