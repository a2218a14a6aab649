// Package tokenstore holds durable single-slot backends for the OAuth token
// set. Every backend stores exactly one record; a missing record means the
// session is not authenticated.
package tokenstore

import (
	"context"
	"sync"

	"github.com/natserract/amocrm/pkg/oauth"
)

var (
	_ oauth.Store = (*MemoryStore)(nil)
	_ oauth.Store = (*FileStore)(nil)
	_ oauth.Store = (*RedisStore)(nil)
	_ oauth.Store = (*PostgresStore)(nil)
	_ oauth.Store = (*MongoStore)(nil)
)

// StoreError reports a failed storage operation.
type StoreError struct {
	Operation string // "load", "save", "delete"
	Backend   string
	Cause     error
}

func (e *StoreError) Error() string {
	return e.Operation + " tokens (" + e.Backend + "): " + e.Cause.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// MemoryStore keeps the token set in process memory.
type MemoryStore struct {
	mu sync.Mutex
	ts *oauth.TokenSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (oauth.TokenSet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts == nil {
		return oauth.TokenSet{}, false, nil
	}
	return *s.ts, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, ts oauth.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts = &ts
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts = nil
	return nil
}
