// Package interview implements the chat session core: a tagged state machine
// over an append-only transcript and the submit protocol against the
// interviewer service.
package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/interview-chat/internal/domain"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/google/uuid"
)

// Rejection reasons for a submission. The session is unchanged when Begin
// returns one of these.
var (
	ErrEmptyInput = errors.New("input is empty")
	ErrBusy       = errors.New("a reply is already pending")
	ErrConcluded  = errors.New("interview is over")
)

// Turn is one accepted submission waiting for the interviewer.
type Turn struct {
	ID      string
	Request interviewer.Request
}

// Snapshot is an immutable copy of a session's observable state.
type Snapshot struct {
	SessionID       string           `json:"session_id"`
	Version         int64            `json:"version"`
	Messages        []domain.Message `json:"messages"`
	QuestionIndex   int              `json:"question_index"`
	State           domain.State     `json:"state"`
	IsLoading       bool             `json:"is_loading"`
	IsInterviewOver bool             `json:"is_interview_over"`
	Placeholder     string           `json:"placeholder"`
}

// Listener receives a snapshot after every transition.
type Listener func(Snapshot)

// Session holds one interview transcript.
type Session struct {
	id string

	mu            sync.Mutex
	messages      []domain.Message
	questionIndex int
	state         domain.State
	pending       string
	version       int64
	updatedAt     time.Time

	// notifyMu orders listener delivery with transitions. Listeners must not
	// call Begin or Resolve.
	notifyMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewSession returns a session seeded with the interviewer's greeting.
func NewSession(id string) *Session {
	return &Session{
		id:        id,
		messages:  []domain.Message{{Role: domain.RoleAI, Content: domain.Greeting}},
		state:     domain.StateIdle,
		updatedAt: time.Now(),
		listeners: make(map[int]Listener),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLoading reports whether a reply is pending.
func (s *Session) IsLoading() bool {
	return s.State() == domain.StateAwaitingResponse
}

// IsInterviewOver reports whether the interview has concluded.
func (s *Session) IsInterviewOver() bool {
	return s.State() == domain.StateConcluded
}

// UpdatedAt returns the time of the last transition.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// idleBefore reports whether the session has no reply pending and has not
// changed since cutoff.
func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != domain.StateAwaitingResponse && s.updatedAt.Before(cutoff)
}

// Snapshot copies the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	messages := make([]domain.Message, len(s.messages))
	copy(messages, s.messages)

	placeholder := domain.PlaceholderOpen
	if s.state == domain.StateConcluded {
		placeholder = domain.PlaceholderEnded
	}
	return Snapshot{
		SessionID:       s.id,
		Version:         s.version,
		Messages:        messages,
		QuestionIndex:   s.questionIndex,
		State:           s.state,
		IsLoading:       s.state == domain.StateAwaitingResponse,
		IsInterviewOver: s.state == domain.StateConcluded,
		Placeholder:     placeholder,
	}
}

// Begin accepts a user turn. The text is stored verbatim; whitespace only
// matters for the emptiness check.
func (s *Session) Begin(text string) (*Turn, error) {
	s.mu.Lock()
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}
	switch s.state {
	case domain.StateAwaitingResponse:
		s.mu.Unlock()
		return nil, ErrBusy
	case domain.StateConcluded:
		s.mu.Unlock()
		return nil, ErrConcluded
	}

	s.messages = append(s.messages, domain.Message{Role: domain.RoleUser, Content: text})
	s.state = domain.StateAwaitingResponse
	s.updatedAt = time.Now()

	turn := &Turn{
		ID: uuid.NewString(),
		Request: interviewer.Request{
			History:       domain.ToHistory(s.messages),
			QuestionIndex: s.questionIndex,
		},
	}
	s.pending = turn.ID
	s.publishLocked()
	return turn, nil
}

// Resolve completes the pending turn with the interviewer's reply or error.
// It returns false when turn is not the one in flight.
func (s *Session) Resolve(turn *Turn, reply *interviewer.Reply, err error) bool {
	s.mu.Lock()
	if turn == nil || s.state != domain.StateAwaitingResponse || s.pending != turn.ID {
		s.mu.Unlock()
		return false
	}

	if err == nil && reply == nil {
		err = interviewer.ErrUnavailable
	}

	next := domain.StateIdle
	if err != nil {
		slog.Warn("Interview turn failed", "session_id", s.id, "turn_id", turn.ID, "error", err)
		s.messages = append(s.messages, domain.Message{Role: domain.RoleAI, Content: domain.FallbackReply})
	} else {
		s.messages = append(s.messages, domain.Message{Role: domain.RoleAI, Content: reply.Text})
		s.questionIndex = reply.NextIndex
		if reply.Concludes() {
			next = domain.StateConcluded
			slog.Info("Interview concluded", "session_id", s.id, "question_index", s.questionIndex)
		}
	}
	s.state = next
	s.pending = ""
	s.updatedAt = time.Now()
	s.publishLocked()
	return true
}

// Submit runs one full turn: Begin, one interviewer call, Resolve. The session
// is never left awaiting a reply when Submit returns.
func (s *Session) Submit(ctx context.Context, p interviewer.Processor, text string) error {
	turn, err := s.Begin(text)
	if err != nil {
		return err
	}
	reply, callErr := p.Next(ctx, turn.Request)
	s.Resolve(turn, reply, callErr)
	return nil
}

// Subscribe registers a listener and returns its cancel function.
func (s *Session) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// publishLocked bumps the version, releases s.mu and delivers the new
// snapshot. Deliveries happen in transition order.
func (s *Session) publishLocked() {
	s.version++
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}
