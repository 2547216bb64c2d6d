package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/auth"
	"ChatRelay/service/store"
	"ChatRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize   = 1 << 20 // 1MB
	historyTimeout = 5 * time.Second
	verifyTimeout  = 5 * time.Second
)

// Origin checking happens in middleware before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config is the chat server's slice of the application configuration.
type Config struct {
	AuthTimeout   time.Duration // unauthenticated connections are closed after this
	HistoryLimit  int           // messages pushed after auth
	SendQueueSize int
}

func (c *Config) norm() {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
}

// Server owns the websocket accept path: it registers connections
// unauthenticated, arms the auth timeout, dispatches inbound frames, and
// removes connections from the registry on close or error.
type Server struct {
	conf     Config
	reg      *Registry
	disp     *Dispatcher
	hub      *Hub
	verifier auth.Verifier
	store    store.MessageStore
}

func NewServer(conf Config, reg *Registry, hub *Hub, verifier auth.Verifier, st store.MessageStore) *Server {
	conf.norm()
	return &Server{
		conf:     conf,
		reg:      reg,
		disp:     NewDispatcher(),
		hub:      hub,
		verifier: verifier,
		store:    st,
	}
}

func (s *Server) Conf() Config              { return s.conf }
func (s *Server) Reg() *Registry            { return s.reg }
func (s *Server) Disp() *Dispatcher         { return s.disp }
func (s *Server) Hub() *Hub                 { return s.hub }
func (s *Server) Verifier() auth.Verifier   { return s.verifier }
func (s *Server) Store() store.MessageStore { return s.store }

// HandleWS upgrades the request and runs the connection until close or
// error.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[chat] upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	client := NewClient(ids.GenerateString(), ws, s.conf.SendQueueSize)
	s.reg.Add(client)
	client.ArmAuthTimeout(s.conf.AuthTimeout, func() { s.expire(client) })
	go client.WritePump()

	logger.Infof("[chat] connected conn=%s remote=%s total=%d",
		client.ConnID, ws.RemoteAddr(), s.reg.Len())

	s.readLoop(client)
	s.Detach(client)
	logger.Infof("[chat] disconnected conn=%s total=%d", client.ConnID, s.reg.Len())
}

func (s *Server) readLoop(client *Client) {
	ws := client.WS
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.logReadErr(client, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			// connection stays open
			logger.Debugf("[chat] bad frame conn=%s: %v", client.ConnID, perr)
			client.Enqueue(BuildError("invalid message format"))
			continue
		}

		h := s.disp.Get(frame.Kind)
		if h == nil {
			logger.Debugf("[chat] no handler conn=%s kind=%q", client.ConnID, frame.Kind)
			continue
		}
		if herr := h.Handle(&Context{S: s}, frame, client); herr != nil {
			logger.Errorf("[chat] handle conn=%s kind=%s: %v", client.ConnID, frame.Kind, herr)
		}
	}
}

func (s *Server) logReadErr(client *Client, err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		logger.Infof("[chat] peer closed conn=%s", client.ConnID)
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			logger.Infof("[chat] read timeout conn=%s: %v", client.ConnID, err)
			return
		}
		logger.Infof("[chat] read err conn=%s: %v", client.ConnID, err)
	}
}

// expire is the auth-timeout callback: close with a reason the peer can
// distinguish from a bad token, then drop the registry entry.
func (s *Server) expire(client *Client) {
	if !client.ExpireAuth() {
		return
	}
	logger.Infof("[chat] auth timeout conn=%s", client.ConnID)
	client.CloseWithReason(websocket.ClosePolicyViolation, "authentication required")
	s.Detach(client)
}

// Kick force-closes a connection with a policy reason (1008).
func (s *Server) Kick(client *Client, reason string) {
	client.CloseWithReason(websocket.ClosePolicyViolation, reason)
	s.Detach(client)
}

// Detach removes the connection from the registry and tears it down.
// Idempotent: the read-loop exit, the timeout path, and Kick may all
// call it for the same connection.
func (s *Server) Detach(client *Client) {
	s.reg.Remove(client.ConnID)
	client.Shutdown()
}

// PushHistory sends the most recent stored messages, oldest first, as a
// single history frame. Failure is logged and the connection stays
// usable without history.
func (s *Server) PushHistory(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	msgs, err := s.store.Recent(ctx, s.conf.HistoryLimit)
	if err != nil {
		logger.Errorf("[chat] history fetch conn=%s: %v", client.ConnID, err)
		return
	}
	client.Enqueue(BuildHistory(msgs))
}

// VerifyTimeout bounds one token verification call.
func VerifyTimeout() time.Duration { return verifyTimeout }
