package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It does not survive restarts or
// coordinate across processes; it exists for tests and for running without
// a redis instance configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

// SetNX claims key if absent or expired.
func (s *MemoryStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// Del removes key.
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
