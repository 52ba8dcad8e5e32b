package kv

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// memoryStore is a development-only in-memory store.
// Values round-trip through JSON so behaviour matches the Redis adapter.
type memoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem

	// now is swappable for expiry tests.
	now func() time.Time
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *memoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	it, ok := s.items[key]
	if ok && !it.expiresAt.IsZero() && s.now().After(it.expiresAt) {
		delete(s.items, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(it.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	it := memoryItem{data: b}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
