package handlers

import (
	"context"

	"ChatRelay/logger"
	"ChatRelay/service/chat"
	"ChatRelay/tools/safe"
)

// AuthHandler runs the authentication transition: verify the bearer
// token, flip the connection to authenticated, cancel the pending
// timeout, ack, and push recent history.
type AuthHandler struct{}

func NewAuthHandler() chat.Handler { return &AuthHandler{} }

func (h *AuthHandler) Kind() string { return chat.KindAuth }

func (h *AuthHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	if c.Authenticated() {
		// redundant auth frames after success carry no side effects;
		// in particular history is never re-sent
		return nil
	}

	p, err := chat.DecodeAuth(f)
	if err != nil {
		logger.Debugf("[auth] payload conn=%s: %v", c.ConnID, err)
		c.Enqueue(chat.BuildError("invalid auth payload"))
		return nil
	}

	vctx, cancel := context.WithTimeout(context.Background(), chat.VerifyTimeout())
	res, verr := ctx.S.Verifier().Verify(vctx, p.Token)
	cancel()
	if verr != nil || res == nil || !res.Valid {
		// generic rejection only; no internal detail reaches the client
		logger.Infof("[auth] rejected conn=%s: %v", c.ConnID, verr)
		ctx.S.Kick(c, "invalid token")
		return nil
	}

	// client-supplied display name wins over the verified profile name
	if p.Username != "" {
		res.DisplayName = p.Username
	}

	if !c.MarkAuthenticated(res) {
		// lost the race against the auth timeout; the connection is
		// already torn down
		logger.Infof("[auth] late verification discarded conn=%s uid=%s", c.ConnID, res.UserID)
		return nil
	}

	logger.Infof("[auth] authenticated conn=%s uid=%s name=%s", c.ConnID, res.UserID, res.DisplayName)
	c.Enqueue(chat.BuildAuthSuccess("authenticated as " + res.DisplayName))

	srv := ctx.S
	safe.Go(func() { srv.PushHistory(c) })
	return nil
}
