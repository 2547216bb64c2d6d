package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ChatRelay/service/chat"
	"ChatRelay/service/mgo"
	"ChatRelay/service/store"

	"github.com/gin-gonic/gin"
)

const queryTimeout = 5 * time.Second

// Handler serves the HTTP query surface next to the websocket endpoint.
type Handler struct {
	reg          *chat.Registry
	store        store.MessageStore
	defaultLimit int
	maxLimit     int
}

func NewHandler(reg *chat.Registry, st store.MessageStore, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &Handler{
		reg:          reg,
		store:        st,
		defaultLimit: defaultLimit,
		maxLimit:     200,
	}
}

// Health reports connection count and store connectivity.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"connections":    h.reg.Len(),
		"storeConnected": mgo.Connected(),
	})
}

// Messages returns the most recent N persisted messages in chronological
// order.
func (h *Handler) Messages(c *gin.Context) {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	msgs, err := h.store.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message store unavailable"})
		return
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
