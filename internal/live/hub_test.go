package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/interview-chat/internal/domain"
	"github.com/ashureev/interview-chat/internal/identity"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testUser = "anon_0123456789abcdef0123456789abcdef"

type harness struct {
	hub      *Hub
	registry *interview.Registry
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := NewHub()
	reg := interview.NewRegistry()
	hub.Attach(reg)

	ws := NewHandler(hub, reg, "*", true)
	srv := httptest.NewServer(identity.Middleware(true)(ws))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &harness{hub: hub, registry: reg, srv: srv}
}

func (h *harness) dial(t *testing.T, tabID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/interview?tab_id=" + tabID
	header := http.Header{}
	header.Set("Cookie", identity.AnonCookieName+"="+testUser)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestConnectSendsSeededSnapshot(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tab-1")

	ev := readEvent(t, conn)
	require.Equal(t, "snapshot", ev.Type)
	require.NotNil(t, ev.Snapshot)
	require.Len(t, ev.Snapshot.Messages, 1)
	assert.Equal(t, domain.Greeting, ev.Snapshot.Messages[0].Content)

	key := interview.Key{UserID: testUser, TabID: "tab-1"}
	assert.NotNil(t, h.registry.Get(key))
	require.Eventually(t, func() bool { return h.hub.Count(key) == 1 }, time.Second, 10*time.Millisecond)
}

func TestTransitionsArePushed(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tab-1")
	readEvent(t, conn)

	s := h.registry.Get(interview.Key{UserID: testUser, TabID: "tab-1"})
	require.NotNil(t, s)

	turn, err := s.Begin("SUMIF sums with a condition")
	require.NoError(t, err)
	ev := readEvent(t, conn)
	assert.True(t, ev.Snapshot.IsLoading)
	assert.Len(t, ev.Snapshot.Messages, 2)

	s.Resolve(turn, &interviewer.Reply{Text: "Great. Next question.", NextIndex: 1}, nil)
	ev = readEvent(t, conn)
	assert.False(t, ev.Snapshot.IsLoading)
	assert.Equal(t, 1, ev.Snapshot.QuestionIndex)
	assert.Len(t, ev.Snapshot.Messages, 3)
}

func TestOtherTabsAreIsolated(t *testing.T) {
	h := newHarness(t)
	one := h.dial(t, "tab-1")
	two := h.dial(t, "tab-2")
	readEvent(t, one)
	readEvent(t, two)

	s := h.registry.Get(interview.Key{UserID: testUser, TabID: "tab-1"})
	_, err := s.Begin("answer")
	require.NoError(t, err)
	assert.True(t, readEvent(t, one).Snapshot.IsLoading)

	require.NoError(t, two.Write(context.Background(), websocket.MessageText, []byte(`{"type":"sync"}`)))
	ev := readEvent(t, two)
	assert.False(t, ev.Snapshot.IsLoading)
	assert.Len(t, ev.Snapshot.Messages, 1)
}

func TestPingPong(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tab-1")
	readEvent(t, conn)

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte("not json")))
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readEvent(t, conn).Type)
}

func TestResetSessionStopsForwarding(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tab-1")
	readEvent(t, conn)

	key := interview.Key{UserID: testUser, TabID: "tab-1"}
	old := h.registry.Get(key)
	fresh := h.registry.Reset(key)

	_, err := old.Begin("late answer to discarded session")
	require.NoError(t, err)
	_, err = fresh.Begin("answer")
	require.NoError(t, err)

	ev := readEvent(t, conn)
	assert.Equal(t, fresh.ID(), ev.Snapshot.SessionID)
	assert.Equal(t, "answer", ev.Snapshot.Messages[1].Content)
}

func TestAttachedTabSurvivesSweep(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tab-1")
	readEvent(t, conn)
	h.dial(t, "tab-2")

	one := interview.Key{UserID: testUser, TabID: "tab-1"}
	two := interview.Key{UserID: testUser, TabID: "tab-2"}
	require.Eventually(t, func() bool { return h.hub.Count(two) == 1 }, time.Second, 10*time.Millisecond)

	s := h.registry.Get(one)
	turn, err := s.Begin("SUMIF sums with a condition")
	require.NoError(t, err)
	readEvent(t, conn)
	s.Resolve(turn, &interviewer.Reply{Text: "Next question.", NextIndex: 1}, nil)
	readEvent(t, conn)

	// An abandoned tab without a connection is still swept.
	h.registry.GetOrCreate(interview.Key{UserID: testUser, TabID: "gone"})

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Sweep(time.Millisecond))

	require.Same(t, s, h.registry.Get(one))
	assert.NotNil(t, h.registry.Get(two))

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"sync"}`)))
	ev := readEvent(t, conn)
	assert.Len(t, ev.Snapshot.Messages, 3)
	assert.Equal(t, 1, ev.Snapshot.QuestionIndex)
}
