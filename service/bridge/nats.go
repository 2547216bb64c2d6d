package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/store"
	"ChatRelay/tools/errs"

	"github.com/nats-io/nats.go"
)

// Config for the cross-node relay bridge.
type Config struct {
	Servers       []string
	Subject       string
	NodeID        string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Bridge mirrors locally accepted messages to peer relay nodes over a
// NATS subject and delivers remote ones into the local fan-out path.
// Messages are persisted only on their origin node.
type Bridge struct {
	cfg Config
	nc  *nats.Conn
	sub *nats.Subscription
}

type envelope struct {
	Node string            `json:"node"`
	Msg  store.ChatMessage `json:"msg"`
}

func New(cfg Config) (*Bridge, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.WrapMsg(nats.ErrNoServers, "nats servers missing")
	}
	if cfg.Subject == "" {
		cfg.Subject = "chatrelay.messages"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect")
	}
	return &Bridge{cfg: cfg, nc: nc}, nil
}

// Publish mirrors one locally accepted message to peers.
func (b *Bridge) Publish(_ context.Context, m *store.ChatMessage) error {
	data, err := json.Marshal(envelope{Node: b.cfg.NodeID, Msg: *m})
	if err != nil {
		return errs.WrapMsg(err, "marshal envelope")
	}
	return b.nc.Publish(b.cfg.Subject, data)
}

// Start subscribes and feeds remote messages to deliver. Envelopes from
// this node are skipped so a message is never fanned out twice locally.
func (b *Bridge) Start(deliver func(*store.ChatMessage)) error {
	sub, err := b.nc.Subscribe(b.cfg.Subject, func(m *nats.Msg) {
		var env envelope
		if uerr := json.Unmarshal(m.Data, &env); uerr != nil {
			logger.Warnf("[bridge] bad envelope: %v", uerr)
			return
		}
		if env.Node == b.cfg.NodeID {
			return
		}
		deliver(&env.Msg)
	})
	if err != nil {
		return errs.WrapMsg(err, "nats subscribe", "subject", b.cfg.Subject)
	}
	b.sub = sub
	return nil
}

func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
