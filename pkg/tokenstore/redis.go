package tokenstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token set as a JSON string under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (oauth.TokenSet, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return oauth.TokenSet{}, false, nil
		}
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "redis", Cause: err}
	}

	var ts oauth.TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "redis", Cause: err}
	}
	return ts, true, nil
}

// Save writes the set without expiry; staleness is decided by the manager.
func (s *RedisStore) Save(ctx context.Context, ts oauth.TokenSet) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return &StoreError{Operation: "save", Backend: "redis", Cause: err}
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return &StoreError{Operation: "save", Backend: "redis", Cause: err}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return &StoreError{Operation: "delete", Backend: "redis", Cause: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
