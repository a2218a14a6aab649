package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/natserract/amocrm/pkg/oauth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "amocrm_tokens"

type tokenDocument struct {
	Key          string    `bson:"_id"`
	AccessToken  string    `bson:"access_token"`
	RefreshToken string    `bson:"refresh_token"`
	TokenType    string    `bson:"token_type"`
	ExpiresIn    int64     `bson:"expires_in"`
	CreatedAt    int64     `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// MongoStore keeps the token set in one document keyed by _id.
type MongoStore struct {
	tokens *mongo.Collection
	key    string
}

func NewMongoStore(db *mongo.Database, key string) *MongoStore {
	return &MongoStore{
		tokens: db.Collection(mongoCollection),
		key:    key,
	}
}

func (s *MongoStore) Load(ctx context.Context) (oauth.TokenSet, bool, error) {
	var doc tokenDocument
	err := s.tokens.FindOne(ctx, bson.M{"_id": s.key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return oauth.TokenSet{}, false, nil
		}
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "mongo", Cause: err}
	}
	return oauth.TokenSet{
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		TokenType:    doc.TokenType,
		ExpiresIn:    doc.ExpiresIn,
		CreatedAt:    doc.CreatedAt,
	}, true, nil
}

func (s *MongoStore) Save(ctx context.Context, ts oauth.TokenSet) error {
	update := bson.M{"$set": bson.M{
		"access_token":  ts.AccessToken,
		"refresh_token": ts.RefreshToken,
		"token_type":    ts.TokenType,
		"expires_in":    ts.ExpiresIn,
		"created_at":    ts.CreatedAt,
		"updated_at":    time.Now().UTC(),
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.tokens.UpdateOne(ctx, bson.M{"_id": s.key}, update, opts); err != nil {
		return &StoreError{Operation: "save", Backend: "mongo", Cause: err}
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context) error {
	if _, err := s.tokens.DeleteOne(ctx, bson.M{"_id": s.key}); err != nil {
		return &StoreError{Operation: "delete", Backend: "mongo", Cause: err}
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.tokens.Database().Client().Disconnect(ctx)
}
