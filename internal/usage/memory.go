package usage

import (
	"context"
	"sync"
)

// memoryStore is a development-only in-memory usage store.
// WARNING: not suitable for production — state is lost on restart and
// does not work across multiple instances.
type memoryStore struct {
	mu     sync.Mutex
	owners map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{owners: make(map[string]string)}
}

func (s *memoryStore) Claim(_ context.Context, orderID, userID string) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[orderID]; ok {
		return Claim{Duplicate: true, Owner: owner}, nil
	}
	s.owners[orderID] = userID
	return Claim{Owner: userID}, nil
}
