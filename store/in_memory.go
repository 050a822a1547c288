package store

import (
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// InMemoryStore is a volatile Store keeping logs in a process-local map. It
// is safe for concurrent access and best suited for tests or ephemeral demo
// servers. Messages are cloned on the way in and out so callers cannot mutate
// stored state.
type InMemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{logs: make(map[string][]core.Message)}
}

// Append implements Store.
func (s *InMemoryStore) Append(conversationID string, msgs []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.logs[conversationID] = append(s.logs[conversationID], m.Clone())
	}
	return nil
}

// Load implements Store.
func (s *InMemoryStore) Load(conversationID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.logs[conversationID]
	out := make([]core.Message, 0, len(stored))
	for _, m := range stored {
		out = append(out, m.Clone())
	}
	return out, nil
}

// Truncate implements Store.
func (s *InMemoryStore) Truncate(conversationID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.logs[conversationID]
	if !ok || n >= len(stored) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	s.logs[conversationID] = stored[:n]
	return nil
}
