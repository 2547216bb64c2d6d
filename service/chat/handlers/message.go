package handlers

import (
	"ChatRelay/logger"
	"ChatRelay/service/chat"
)

// MessageHandler gates chat frames on authentication and forwards
// accepted ones to the hub.
type MessageHandler struct{}

func NewMessageHandler() chat.Handler { return &MessageHandler{} }

func (h *MessageHandler) Kind() string { return chat.KindMessage }

func (h *MessageHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	if !c.Authenticated() {
		// dropped: no persistence, no broadcast, connection stays open
		c.Enqueue(chat.BuildError("must authenticate first"))
		return nil
	}

	p, err := chat.DecodeMessage(f)
	if err != nil {
		logger.Debugf("[message] payload conn=%s: %v", c.ConnID, err)
		c.Enqueue(chat.BuildError("invalid message payload"))
		return nil
	}

	ctx.S.Hub().Submit(c, p.Text)
	return nil
}
