//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/interview-chat/internal/domain"
	"github.com/ashureev/interview-chat/internal/identity"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/ashureev/interview-chat/internal/middleware"
	"github.com/go-chi/chi/v5"
)

const testUser = "anon_0123456789abcdef0123456789abcdef"

type fakeProcessor struct {
	mu       sync.Mutex
	reply    *interviewer.Reply
	err      error
	gate     chan struct{}
	requests []interviewer.Request
}

func (f *fakeProcessor) Next(ctx context.Context, req interviewer.Request) (*interviewer.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type testServer struct {
	handler  *InterviewHandler
	registry *interview.Registry
	router   http.Handler
}

func newTestServer(p interviewer.Processor) *testServer {
	return newLimitedTestServer(p, nil)
}

func newLimitedTestServer(p interviewer.Processor, limiter func(http.Handler) http.Handler) *testServer {
	reg := interview.NewRegistry()
	h := NewInterviewHandler(context.Background(), reg, p, limiter)
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return &testServer{handler: h, registry: reg, router: r}
}

func (ts *testServer) do(t *testing.T, method, path, tab, body string) (int, SnapshotResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testUser})
	req.Header.Set(identity.TabHeaderName, tab)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var resp SnapshotResponse
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

// waitIdle polls until the session has no reply pending.
func waitIdle(t *testing.T, s *interview.Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsLoading() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the reply")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetSessionSeedsGreeting(t *testing.T) {
	ts := newTestServer(&fakeProcessor{})

	code, resp := ts.do(t, http.MethodGet, "/api/interview/session", "tab-1", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(resp.Snapshot.Messages) != 1 || resp.Snapshot.Messages[0].Content != domain.Greeting {
		t.Fatalf("Expected seeded greeting, got %+v", resp.Snapshot.Messages)
	}
	if resp.Snapshot.State != domain.StateIdle || resp.Snapshot.Placeholder != domain.PlaceholderOpen {
		t.Errorf("Unexpected initial state %+v", resp.Snapshot)
	}
}

func TestSubmitWaitResolves(t *testing.T) {
	p := &fakeProcessor{reply: &interviewer.Reply{Text: "Great. VLOOKUP vs INDEX/MATCH?", NextIndex: 1}}
	ts := newTestServer(p)

	code, resp := ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-1", `{"text":"SUM adds, SUMIF filters"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	snap := resp.Snapshot
	if len(snap.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[1].Role != domain.RoleUser || snap.Messages[2].Content != p.reply.Text {
		t.Errorf("Unexpected transcript %+v", snap.Messages)
	}
	if snap.QuestionIndex != 1 || snap.IsLoading {
		t.Errorf("Unexpected state %+v", snap)
	}
	if got := p.requests[0].History[0].Role; got != "assistant" {
		t.Errorf("Expected greeting sent as assistant, got %q", got)
	}
}

func TestSubmitAsyncThenBusy(t *testing.T) {
	p := &fakeProcessor{
		reply: &interviewer.Reply{Text: "That concludes our interview. Thank you for your time!", NextIndex: 3},
		gate:  make(chan struct{}),
	}
	ts := newTestServer(p)

	code, resp := ts.do(t, http.MethodPost, "/api/interview/messages", "tab-1", `{"text":"answer"}`)
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", code)
	}
	if !resp.Snapshot.IsLoading || len(resp.Snapshot.Messages) != 2 {
		t.Fatalf("Expected pending snapshot, got %+v", resp.Snapshot)
	}

	code, resp = ts.do(t, http.MethodPost, "/api/interview/messages", "tab-1", `{"text":"again"}`)
	if code != http.StatusConflict || resp.Error != "busy" {
		t.Fatalf("Expected 409 busy, got %d %q", code, resp.Error)
	}
	if len(resp.Snapshot.Messages) != 2 {
		t.Errorf("Rejected submit changed transcript: %+v", resp.Snapshot.Messages)
	}

	close(p.gate)
	waitIdle(t, ts.registry.Get(interview.Key{UserID: testUser, TabID: "tab-1"}))

	code, resp = ts.do(t, http.MethodGet, "/api/interview/session", "tab-1", "")
	if code != http.StatusOK || !resp.Snapshot.IsInterviewOver || resp.Snapshot.IsLoading {
		t.Fatalf("Expected concluded session, got %d %+v", code, resp.Snapshot)
	}
	if resp.Snapshot.Placeholder != domain.PlaceholderEnded {
		t.Errorf("Expected ended placeholder, got %q", resp.Snapshot.Placeholder)
	}

	code, resp = ts.do(t, http.MethodPost, "/api/interview/messages", "tab-1", `{"text":"hello?"}`)
	if code != http.StatusConflict || resp.Error != "interview_over" {
		t.Fatalf("Expected 409 interview_over, got %d %q", code, resp.Error)
	}
	if p.calls() != 1 {
		t.Errorf("Expected exactly one interviewer call, got %d", p.calls())
	}
}

func TestSubmitFailureAppendsFallback(t *testing.T) {
	p := &fakeProcessor{err: errors.New("connection refused")}
	ts := newTestServer(p)

	code, resp := ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-1", `{"text":"answer"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	last := resp.Snapshot.Messages[len(resp.Snapshot.Messages)-1]
	if last.Role != domain.RoleAI || last.Content != domain.FallbackReply {
		t.Errorf("Expected fallback reply, got %+v", last)
	}
	if resp.Snapshot.IsInterviewOver || resp.Snapshot.IsLoading {
		t.Errorf("Failure must leave session idle, got %+v", resp.Snapshot)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ts := newTestServer(&fakeProcessor{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"whitespace", `{"text":"   "}`, http.StatusBadRequest, "empty_input"},
		{"missing text", `{}`, http.StatusBadRequest, "empty_input"},
		{"malformed", `{"text":`, http.StatusBadRequest, "invalid_request_body"},
		{"trailing data", `{"text":"a"} {"text":"b"}`, http.StatusBadRequest, "invalid_request_body"},
		{"too large", `{"text":"` + strings.Repeat("x", maxSubmitBodySize) + `"}`, http.StatusRequestEntityTooLarge, "request_too_large"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := ts.do(t, http.MethodPost, "/api/interview/messages", "tab-1", tc.body)
			if code != tc.status || resp.Error != tc.code {
				t.Errorf("Expected %d %q, got %d %q", tc.status, tc.code, code, resp.Error)
			}
		})
	}

	_, resp := ts.do(t, http.MethodGet, "/api/interview/session", "tab-1", "")
	if len(resp.Snapshot.Messages) != 1 {
		t.Errorf("Rejected submissions changed transcript: %+v", resp.Snapshot.Messages)
	}
}

func TestResetReseeds(t *testing.T) {
	p := &fakeProcessor{reply: &interviewer.Reply{Text: "Next?", NextIndex: 1}}
	ts := newTestServer(p)

	ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-1", `{"text":"answer"}`)
	_, before := ts.do(t, http.MethodGet, "/api/interview/session", "tab-1", "")

	code, resp := ts.do(t, http.MethodPost, "/api/interview/reset", "tab-1", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(resp.Snapshot.Messages) != 1 || resp.Snapshot.QuestionIndex != 0 {
		t.Errorf("Expected reseeded session, got %+v", resp.Snapshot)
	}
	if resp.Snapshot.SessionID == before.Snapshot.SessionID {
		t.Error("Expected a new session ID after reset")
	}
}

func TestTabsHaveSeparateTranscripts(t *testing.T) {
	p := &fakeProcessor{reply: &interviewer.Reply{Text: "Next?", NextIndex: 1}}
	ts := newTestServer(p)

	ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-1", `{"text":"answer"}`)
	_, resp := ts.do(t, http.MethodGet, "/api/interview/session", "tab-2", "")
	if len(resp.Snapshot.Messages) != 1 {
		t.Errorf("Expected untouched tab-2 session, got %d messages", len(resp.Snapshot.Messages))
	}
	if ts.registry.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", ts.registry.Len())
	}
}

func TestSubmitIsRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(2, time.Minute)
	defer rl.Close()

	p := &fakeProcessor{reply: &interviewer.Reply{Text: "Next?", NextIndex: 1}}
	ts := newLimitedTestServer(p, rl.Middleware)

	for i := 0; i < 2; i++ {
		code, _ := ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-1", `{"text":"answer"}`)
		if code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, code)
		}
	}

	code, resp := ts.do(t, http.MethodPost, "/api/interview/messages?wait=true", "tab-2", `{"text":"answer"}`)
	if code != http.StatusTooManyRequests || resp.Error != "rate_limited" {
		t.Fatalf("Expected 429 rate_limited, got %d %q", code, resp.Error)
	}

	// Reads are not limited.
	if code, _ := ts.do(t, http.MethodGet, "/api/interview/session", "tab-1", ""); code != http.StatusOK {
		t.Errorf("Expected 200 for session read, got %d", code)
	}
}

func TestCloseDrainsTurnsAndRejectsNewOnes(t *testing.T) {
	p := &fakeProcessor{
		reply: &interviewer.Reply{Text: "Next?", NextIndex: 1},
		gate:  make(chan struct{}),
	}
	ts := newTestServer(p)

	code, _ := ts.do(t, http.MethodPost, "/api/interview/messages", "tab-1", `{"text":"answer"}`)
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", code)
	}

	closed := make(chan struct{})
	go func() {
		ts.handler.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a turn was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(p.gate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the turn resolved")
	}

	code, resp := ts.do(t, http.MethodPost, "/api/interview/messages", "tab-2", `{"text":"late"}`)
	if code != http.StatusServiceUnavailable || resp.Error != "shutting_down" {
		t.Fatalf("Expected 503 shutting_down, got %d %q", code, resp.Error)
	}
	if len(resp.Snapshot.Messages) != 1 {
		t.Errorf("Rejected submit changed transcript: %+v", resp.Snapshot.Messages)
	}
	if p.calls() != 1 {
		t.Errorf("Expected exactly one interviewer call, got %d", p.calls())
	}
}
