// Package history persists the externally observable session record: the
// ordered chat-interaction history plus status updates, and the checkpoint
// records written at compaction time. The in-memory implementations back
// tests; the Redis implementations back deployments. Both apply the
// claim-check codec at the serialization boundary when one is configured.
package history

import (
	"context"
	"sync"

	"github.com/wealthmesh/wealthmesh/core"
)

// InMemoryStore is a volatile HistoryStore keeping per-session records in a
// process-local map. Safe for concurrent access; independent sessions never
// contend on the same entry.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

type record struct {
	interactions []core.ChatInteraction
	statuses     []core.StatusUpdate
}

// NewInMemoryStore constructs an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*record)}
}

// AppendInteraction appends one interaction to the session's history.
func (s *InMemoryStore) AppendInteraction(_ context.Context, sessionID string, interaction core.ChatInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(sessionID)
	rec.interactions = append(rec.interactions, interaction)
	return nil
}

// AppendStatus appends one status update to the session's record.
func (s *InMemoryStore) AppendStatus(_ context.Context, sessionID string, status core.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(sessionID)
	rec.statuses = append(rec.statuses, status)
	return nil
}

// Read returns a copy of the session's full interaction history in append
// order. Unknown sessions yield an empty history, matching a cold start.
func (s *InMemoryStore) Read(_ context.Context, sessionID string) ([]core.ChatInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]core.ChatInteraction, len(rec.interactions))
	copy(out, rec.interactions)
	return out, nil
}

// Statuses returns a copy of the session's status updates. Test helper.
func (s *InMemoryStore) Statuses(sessionID string) []core.StatusUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]core.StatusUpdate, len(rec.statuses))
	copy(out, rec.statuses)
	return out
}

// Delete removes the session's record entirely.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) recordLocked(sessionID string) *record {
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &record{}
		s.sessions[sessionID] = rec
	}
	return rec
}
