package store

import (
	"context"

	"ChatRelay/service/mgo"
	"ChatRelay/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists messages in a Mongo collection. The database handle
// is resolved per call through the mgo manager, so the relay keeps serving
// while Mongo is down and store calls fail with ErrStore instead.
type MongoStore struct {
	collection string
}

func NewMongoStore(collection string) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Append(ctx context.Context, m *ChatMessage) (string, error) {
	db, ok := mgo.TryGetDB()
	if !ok {
		return "", errs.ErrStore.WrapMsg("mongo not ready")
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if _, err := db.Collection(s.collection).InsertOne(ctx, m); err != nil {
		return "", errs.ErrStore.WrapMsg("insert message", "err", err)
	}
	return m.ID.Hex(), nil
}

func (s *MongoStore) Recent(ctx context.Context, limit int) ([]ChatMessage, error) {
	db, ok := mgo.TryGetDB()
	if !ok {
		return nil, errs.ErrStore.WrapMsg("mongo not ready")
	}
	if limit <= 0 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := db.Collection(s.collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg("find recent", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var newestFirst []ChatMessage
	if err := cur.All(ctx, &newestFirst); err != nil {
		return nil, errs.ErrStore.WrapMsg("decode recent", "err", err)
	}

	// chronological order for display
	out := make([]ChatMessage, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}
