package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessage is the persisted shape of one accepted chat message.
// Timestamp is assigned by the server at the moment persistence is
// attempted, never taken from the client.
type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AuthorID   string             `bson:"authorId" json:"uid"`
	AuthorName string             `bson:"authorName" json:"username"`
	Text       string             `bson:"text" json:"text"`
	Timestamp  time.Time          `bson:"ts" json:"timestamp"`
}

// MessageStore is the durable message backend. Implementations fail with
// errs.ErrStore when the backend is unavailable; callers log and keep the
// connection alive.
type MessageStore interface {
	// Append persists one message and returns its id.
	Append(ctx context.Context, m *ChatMessage) (string, error)
	// Recent returns up to limit of the most recent messages, oldest
	// first.
	Recent(ctx context.Context, limit int) ([]ChatMessage, error)
}
