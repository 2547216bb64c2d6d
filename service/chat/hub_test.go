package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"ChatRelay/service/store"
	"ChatRelay/tools/errs"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	msgs       []store.ChatMessage
	failAppend bool
}

func (f *fakeStore) Append(_ context.Context, m *store.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return "", errs.ErrStore.WrapMsg("backend down")
	}
	f.msgs = append(f.msgs, *m)
	return strconv.Itoa(len(f.msgs)), nil
}

func (f *fakeStore) Recent(_ context.Context, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return nil, errs.ErrStore.WrapMsg("backend down")
	}
	start := len(f.msgs) - limit
	if start < 0 {
		start = 0
	}
	out := make([]store.ChatMessage, len(f.msgs[start:]))
	copy(out, f.msgs[start:])
	return out, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func recvText(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.Send:
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(st store.MessageStore, strict bool) (*Hub, *Registry) {
	reg := NewRegistry()
	hub := NewHub(reg, st, HubConfig{FanoutWorkers: 2, FanoutQueue: 16, StrictPersist: strict})
	return hub, reg
}

func TestHub_BroadcastReachesOnlyAuthenticated(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{}
	hub, reg := newTestHub(st, false)
	defer hub.Close()

	alice := NewClient("a", nil, 8)
	bob := NewClient("b", nil, 8)
	eve := NewClient("e", nil, 8) // never authenticates
	req.True(alice.MarkAuthenticated(ident("u1", "Alice")))
	req.True(bob.MarkAuthenticated(ident("u2", "Bob")))
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(eve)

	hub.Submit(alice, "hi")

	for _, c := range []*Client{alice, bob} {
		frame := recvText(t, c)
		req.Equal("message", frame["type"])
		req.Equal("Alice", frame["username"])
		req.Equal("hi", frame["text"])
		req.Equal("u1", frame["uid"])
		req.NotEmpty(frame["timestamp"])
	}
	requireNoFrame(t, eve)
	req.Equal(1, st.count())
}

func TestHub_TrimmedEmptyTextIsDropped(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{}
	hub, reg := newTestHub(st, false)
	defer hub.Close()

	alice := NewClient("a", nil, 8)
	req.True(alice.MarkAuthenticated(ident("u1", "Alice")))
	reg.Add(alice)

	hub.Submit(alice, "   \n\t ")

	requireNoFrame(t, alice)
	req.Zero(st.count())
}

func TestHub_AppendFailureStillBroadcastsByDefault(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{failAppend: true}
	hub, reg := newTestHub(st, false)
	defer hub.Close()

	alice := NewClient("a", nil, 8)
	bob := NewClient("b", nil, 8)
	req.True(alice.MarkAuthenticated(ident("u1", "Alice")))
	req.True(bob.MarkAuthenticated(ident("u2", "Bob")))
	reg.Add(alice)
	reg.Add(bob)

	hub.Submit(alice, "hi")

	frame := recvText(t, bob)
	req.Equal("message", frame["type"])
	req.Equal("hi", frame["text"])
}

func TestHub_StrictPersistSuppressesBroadcast(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{failAppend: true}
	hub, reg := newTestHub(st, true)
	defer hub.Close()

	alice := NewClient("a", nil, 8)
	bob := NewClient("b", nil, 8)
	req.True(alice.MarkAuthenticated(ident("u1", "Alice")))
	req.True(bob.MarkAuthenticated(ident("u2", "Bob")))
	reg.Add(alice)
	reg.Add(bob)

	hub.Submit(alice, "hi")

	// only the sender hears about it, as an error frame
	frame := recvText(t, alice)
	req.Equal("error", frame["type"])
	requireNoFrame(t, bob)
}

func TestHub_AllRecipientsSeeAllMessages(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{}
	hub, reg := newTestHub(st, false)
	defer hub.Close()

	const senders = 3
	const perSender = 5

	clients := make([]*Client, senders)
	for i := range clients {
		id := strconv.Itoa(i)
		clients[i] = NewClient("c"+id, nil, senders*perSender+1)
		req.True(clients[i].MarkAuthenticated(ident("u"+id, "User"+id)))
		reg.Add(clients[i])
	}

	want := map[string]struct{}{}
	for i, c := range clients {
		for j := 0; j < perSender; j++ {
			text := "m-" + strconv.Itoa(i) + "-" + strconv.Itoa(j)
			want[text] = struct{}{}
			hub.Submit(c, text)
		}
	}

	// each client receives the full set; order across clients is not
	// constrained
	for _, c := range clients {
		got := map[string]struct{}{}
		for k := 0; k < senders*perSender; k++ {
			frame := recvText(t, c)
			got[frame["text"].(string)] = struct{}{}
		}
		req.Equal(want, got)
	}
	req.Equal(senders*perSender, st.count())
}

func TestHub_DeliverRemoteDoesNotPersist(t *testing.T) {
	req := require.New(t)
	st := &fakeStore{}
	hub, reg := newTestHub(st, false)
	defer hub.Close()

	alice := NewClient("a", nil, 8)
	req.True(alice.MarkAuthenticated(ident("u1", "Alice")))
	reg.Add(alice)

	hub.DeliverRemote(&store.ChatMessage{
		AuthorID:   "u9",
		AuthorName: "Zoe",
		Text:       "from another node",
		Timestamp:  time.Now(),
	})

	frame := recvText(t, alice)
	req.Equal("Zoe", frame["username"])
	req.Zero(st.count())
}
