package store

import (
	"context"

	"ChatRelay/service/mgo"
	"ChatRelay/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
)

// UserProfile is the persisted identity record kept by the provisioning
// side; the relay only reads it to fill display names.
type UserProfile struct {
	UID         string `bson:"uid" json:"uid"`
	DisplayName string `bson:"displayName" json:"displayName"`
	Email       string `bson:"email" json:"email"`
}

// MongoUsers reads user profiles from the configured users collection.
type MongoUsers struct {
	collection string
}

func NewMongoUsers(collection string) *MongoUsers {
	return &MongoUsers{collection: collection}
}

func (u *MongoUsers) Lookup(ctx context.Context, uid string) (*UserProfile, error) {
	db, ok := mgo.TryGetDB()
	if !ok {
		return nil, errs.ErrStore.WrapMsg("mongo not ready")
	}
	var p UserProfile
	err := db.Collection(u.collection).FindOne(ctx, bson.M{"uid": uid}).Decode(&p)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg("lookup user", "uid", uid, "err", err)
	}
	return &p, nil
}
