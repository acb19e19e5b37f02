package claimcheck

import (
	"context"
	"sync"
)

// InMemoryStore is a volatile ContentStore keeping blobs in a process-local
// map. It is safe for concurrent access and best suited for tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory content store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under token.
func (s *InMemoryStore) Put(_ context.Context, token string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[token] = cp
	return nil
}

// Get returns the blob stored under token or ErrTokenMissing.
func (s *InMemoryStore) Get(_ context.Context, token string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[token]
	if !ok {
		return nil, ErrTokenMissing
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Len reports the number of stored blobs. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
