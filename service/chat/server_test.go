package chat_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatRelay/service/auth"
	"ChatRelay/service/chat"
	"ChatRelay/service/chat/handlers"
	"ChatRelay/service/store"
	"ChatRelay/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	msgs []store.ChatMessage
}

func (m *memStore) Append(_ context.Context, msg *store.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, *msg)
	return strconv.Itoa(len(m.msgs)), nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.msgs) - limit
	if start < 0 {
		start = 0
	}
	out := make([]store.ChatMessage, len(m.msgs[start:]))
	copy(out, m.msgs[start:])
	return out, nil
}

type tokenTable struct {
	byToken map[string]auth.AuthResult
}

func (v *tokenTable) Verify(_ context.Context, token string) (*auth.AuthResult, error) {
	if r, ok := v.byToken[token]; ok {
		cp := r
		return &cp, nil
	}
	return nil, errs.ErrAuth.Wrap()
}

type relayFixture struct {
	ts  *httptest.Server
	reg *chat.Registry
	hub *chat.Hub
	st  *memStore
}

func newRelay(t *testing.T, authTimeout time.Duration) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &memStore{}
	reg := chat.NewRegistry()
	hub := chat.NewHub(reg, st, chat.HubConfig{FanoutWorkers: 2, FanoutQueue: 32})
	verifier := &tokenTable{byToken: map[string]auth.AuthResult{
		"tok-alice": {Valid: true, UserID: "u1", DisplayName: "Alice"},
		"tok-bob":   {Valid: true, UserID: "u2", DisplayName: "Bob"},
	}}

	srv := chat.NewServer(chat.Config{
		AuthTimeout:   authTimeout,
		HistoryLimit:  20,
		SendQueueSize: 32,
	}, reg, hub, verifier, st)
	srv.Disp().Register(handlers.NewAuthHandler())
	srv.Disp().Register(handlers.NewMessageHandler())

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
	})
	return &relayFixture{ts: ts, reg: reg, hub: hub, st: st}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	sendJSON(t, conn, map[string]any{"type": "auth", "token": token})
	frame := readFrame(t, conn)
	require.Equal(t, "auth_success", frame["type"])
	frame = readFrame(t, conn)
	require.Equal(t, "history", frame["type"])
}

func TestServer_AuthSuccessThenHistory(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	// seed two stored messages
	_, err := f.st.Append(context.Background(), &store.ChatMessage{
		AuthorID: "u9", AuthorName: "Zoe", Text: "old-1", Timestamp: time.Now().Add(-2 * time.Minute),
	})
	req.NoError(err)
	_, err = f.st.Append(context.Background(), &store.ChatMessage{
		AuthorID: "u9", AuthorName: "Zoe", Text: "old-2", Timestamp: time.Now().Add(-time.Minute),
	})
	req.NoError(err)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"type": "auth", "token": "tok-alice"})

	frame := readFrame(t, conn)
	req.Equal("auth_success", frame["type"])

	frame = readFrame(t, conn)
	req.Equal("history", frame["type"])
	msgs := frame["messages"].([]any)
	req.Len(msgs, 2)
	first := msgs[0].(map[string]any)
	second := msgs[1].(map[string]any)
	req.Equal("old-1", first["text"]) // oldest first
	req.Equal("old-2", second["text"])

	require.Eventually(t, func() bool {
		return len(f.reg.Authed()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_ClientUsernameOverridesProfileName(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	a := f.dial(t)
	sendJSON(t, a, map[string]any{"type": "auth", "token": "tok-alice", "username": "Ally"})
	frame := readFrame(t, a)
	req.Equal("auth_success", frame["type"])
	readFrame(t, a) // history

	b := f.dial(t)
	authenticate(t, b, "tok-bob")

	sendJSON(t, a, map[string]any{"type": "message", "text": "hi"})
	got := readFrame(t, b)
	req.Equal("message", got["type"])
	req.Equal("Ally", got["username"])
	req.Equal("u1", got["uid"])
}

func TestServer_BroadcastReachesAllAuthenticated(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	a := f.dial(t)
	authenticate(t, a, "tok-alice")
	b := f.dial(t)
	authenticate(t, b, "tok-bob")

	sendJSON(t, a, map[string]any{"type": "message", "text": "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		got := readFrame(t, conn)
		req.Equal("message", got["type"])
		req.Equal("Alice", got["username"])
		req.Equal("hi", got["text"])
		req.Equal("u1", got["uid"])
		req.NotEmpty(got["timestamp"])
	}
	req.Equal(1, len(f.st.msgs))
}

func TestServer_UnauthenticatedMessageIsRejected(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	spectator := f.dial(t)
	authenticate(t, spectator, "tok-bob")

	c := f.dial(t)
	sendJSON(t, c, map[string]any{"type": "message", "text": "hi"})

	got := readFrame(t, c)
	req.Equal("error", got["type"])
	req.Equal("must authenticate first", got["message"])

	// nothing was persisted or delivered to anyone else
	req.Empty(f.st.msgs)
	req.NoError(spectator.SetReadDeadline(time.Now().Add(150 * time.Millisecond)))
	_, _, err := spectator.ReadMessage()
	req.Error(err)
}

func TestServer_AuthTimeoutCloses1008(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 150*time.Millisecond)

	conn := f.dial(t)
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err)

	ce, ok := err.(*websocket.CloseError)
	req.True(ok, "expected close error, got %v", err)
	req.Equal(websocket.ClosePolicyViolation, ce.Code)
	req.Equal("authentication required", ce.Text)

	require.Eventually(t, func() bool {
		return f.reg.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServer_InvalidTokenCloses1008(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"type": "auth", "token": "tok-forged"})

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err)

	ce, ok := err.(*websocket.CloseError)
	req.True(ok, "expected close error, got %v", err)
	req.Equal(websocket.ClosePolicyViolation, ce.Code)
	req.Equal("invalid token", ce.Text)

	require.Eventually(t, func() bool {
		return f.reg.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServer_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	conn := f.dial(t)
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	got := readFrame(t, conn)
	req.Equal("error", got["type"])

	// the same connection can still authenticate
	authenticate(t, conn, "tok-alice")
}

func TestServer_UnknownKindIsIgnored(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	conn := f.dial(t)
	authenticate(t, conn, "tok-alice")
	sendJSON(t, conn, map[string]any{"type": "presence", "state": "away"})

	// no reply, and the connection keeps working
	sendJSON(t, conn, map[string]any{"type": "message", "text": "still here"})
	got := readFrame(t, conn)
	req.Equal("message", got["type"])
	req.Equal("still here", got["text"])
}

func TestServer_RedundantAuthDoesNotResendHistory(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	conn := f.dial(t)
	authenticate(t, conn, "tok-alice")
	sendJSON(t, conn, map[string]any{"type": "auth", "token": "tok-alice"})

	// next frame must be the broadcast, not a second auth_success/history
	sendJSON(t, conn, map[string]any{"type": "message", "text": "after"})
	got := readFrame(t, conn)
	req.Equal("message", got["type"])
	req.Equal("after", got["text"])
}

func TestServer_BareTextFrameIsBroadcast(t *testing.T) {
	req := require.New(t)
	f := newRelay(t, 5*time.Second)

	conn := f.dial(t)
	authenticate(t, conn, "tok-alice")

	sendJSON(t, conn, map[string]any{"text": "legacy"})
	got := readFrame(t, conn)
	req.Equal("message", got["type"])
	req.Equal("legacy", got["text"])
}
