// Package flowstore is the backend side of round progression: per-user
// status persisted in a key-value store plus the start/answer/complete
// gating rules.
package flowstore

import (
	"context"
	"sync"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

// Store persists one status map per user. Get never fails for a user that
// has no entry; it returns the default status.
type Store interface {
	Get(ctx context.Context, userID string) (model.StatusMap, error)
	Save(ctx context.Context, userID string, status model.StatusMap) error
}

// MemoryStore keeps status in process. Entries never expire.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]model.StatusMap
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]model.StatusMap)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (model.StatusMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[userID]; ok {
		return st.Clone(), nil
	}
	return model.DefaultStatus(), nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, status model.StatusMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = status.Normalize()
	return nil
}
