package chat

import (
	"context"
	"strings"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/store"
	"ChatRelay/tools/safe"
)

const persistTimeout = 5 * time.Second

// Publisher mirrors an accepted message to peer nodes. Optional.
type Publisher interface {
	Publish(ctx context.Context, m *store.ChatMessage) error
}

// HubConfig selects the fan-out pool size and the persistence policy.
type HubConfig struct {
	FanoutWorkers int
	FanoutQueue   int

	// StrictPersist gates broadcast on a successful append. When false
	// (the default), the hub attempts the append and broadcasts
	// regardless of its outcome; when true a failed append suppresses
	// the broadcast and only the sender is told.
	StrictPersist bool
}

// Hub accepts chat payloads from authenticated connections, persists
// them with a server-assigned timestamp, and fans them out to every
// authenticated member of the registry.
type Hub struct {
	reg    *Registry
	store  store.MessageStore
	fanout *Fanout
	conf   HubConfig
	bridge Publisher
}

func NewHub(reg *Registry, st store.MessageStore, conf HubConfig) *Hub {
	return &Hub{
		reg:    reg,
		store:  st,
		fanout: NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
		conf:   conf,
	}
}

// SetBridge attaches the cross-node publisher. Call before serving.
func (h *Hub) SetBridge(p Publisher) { h.bridge = p }

// Submit takes one chat payload from an authenticated sender. Empty
// text after trimming is dropped without persistence, broadcast, or
// error. At most one broadcast happens per accepted message.
func (h *Hub) Submit(sender *Client, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	id := sender.Identity()
	if id == nil {
		return
	}

	msg := &store.ChatMessage{
		AuthorID:   id.UserID,
		AuthorName: id.DisplayName,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	_, err := h.store.Append(ctx, msg)
	cancel()
	if err != nil {
		logger.Errorf("[hub] append message author=%s: %v", msg.AuthorID, err)
		if h.conf.StrictPersist {
			sender.Enqueue(BuildError("message could not be saved"))
			return
		}
	}

	h.fanout.Broadcast(h.reg.Authed(), BuildChatMessage(msg))

	if h.bridge != nil {
		safe.Go(func() {
			pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
			defer pcancel()
			if perr := h.bridge.Publish(pctx, msg); perr != nil {
				logger.Warnf("[hub] bridge publish: %v", perr)
			}
		})
	}
}

// DeliverRemote fans out a message accepted on a peer node. No persist
// and no re-publish; the origin node owns both.
func (h *Hub) DeliverRemote(m *store.ChatMessage) {
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return
	}
	h.fanout.Broadcast(h.reg.Authed(), BuildChatMessage(m))
}

// Close drains and stops the fan-out workers.
func (h *Hub) Close() {
	h.fanout.Close()
}
