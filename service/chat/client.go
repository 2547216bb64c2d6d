package chat

import (
	"sync"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/auth"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one live websocket connection and its lifecycle state. The
// auth fields are guarded by mu and shared between the read loop, the
// auth-timeout callback, and the fan-out path; authenticated moves
// false→true exactly once and never reverts, identity is set at that same
// transition and immutable afterwards.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Send   chan []byte // consumed by a single writer goroutine

	mu            sync.Mutex
	authenticated bool
	identity      *auth.AuthResult
	authTimer     *time.Timer // armed only while unauthenticated
	closed        bool        // terminal; no further sends or transitions

	sendOnce sync.Once
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
	}
}

// ArmAuthTimeout schedules onExpire after d unless the client
// authenticates or closes first.
func (c *Client) ArmAuthTimeout(d time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.authenticated {
		return
	}
	c.authTimer = time.AfterFunc(d, onExpire)
}

// MarkAuthenticated performs the one permitted auth transition. It
// reports false when the client is already authenticated or already torn
// down; the timer-expiry path and this path serialize on mu, so a late
// verification racing the timeout resolves to exactly one outcome.
func (c *Client) MarkAuthenticated(res *auth.AuthResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.authenticated {
		return false
	}
	c.authenticated = true
	c.identity = res
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	return true
}

// ExpireAuth transitions an unauthenticated client to closed. It reports
// false when the client authenticated or closed first, in which case the
// expiry is a no-op.
func (c *Client) ExpireAuth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.authenticated {
		return false
	}
	c.closed = true
	c.authTimer = nil
	return true
}

func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Identity returns the verified identity, nil before authentication.
func (c *Client) Identity() *auth.AuthResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Enqueue offers a frame to the writer queue. It reports false for
// clients mid-close or with a full queue; callers treat that as a skip,
// not an error.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Shutdown makes the client terminal, stops a pending auth timer, and
// closes the writer queue. Safe to call any number of times.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.mu.Unlock()
	c.sendOnce.Do(func() { close(c.Send) })
}

// CloseWithReason sends a close frame with the given code and reason,
// then closes the socket. Used for policy closes (1008) where the peer
// must see a distinguishable reason.
func (c *Client) CloseWithReason(code int, reason string) {
	if c.WS == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.WS.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		logger.Debugf("[chat] write close conn=%s: %v", c.ConnID, err)
	}
	_ = c.WS.Close()
}

// WritePump drains the send queue onto the socket. Run in its own
// goroutine; exits when Shutdown closes the queue or a write fails.
func (c *Client) WritePump() {
	defer func() {
		if c.WS != nil {
			_ = c.WS.Close()
		}
	}()
	for data := range c.Send {
		if c.WS == nil {
			continue
		}
		if err := c.WS.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			logger.Debugf("[chat] set write deadline conn=%s: %v", c.ConnID, err)
			return
		}
		if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debugf("[chat] write conn=%s: %v", c.ConnID, err)
			return
		}
	}
	// queue closed: best-effort close frame
	if c.WS != nil {
		_ = c.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	}
}
