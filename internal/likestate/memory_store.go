package likestate

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used when Redis is not configured.
// Like state then survives only as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	likes map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{likes: make(map[string][]string)}
}

func (s *MemoryStore) LikedSlugs(_ context.Context, clientID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slugs := s.likes[clientID]
	out := make([]string, len(slugs))
	copy(out, slugs)
	return out, nil
}

func (s *MemoryStore) SaveLikedSlugs(_ context.Context, clientID string, slugs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]string, len(slugs))
	copy(stored, slugs)
	s.likes[clientID] = stored
	return nil
}
