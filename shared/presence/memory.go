package presence

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore - присутствие в памяти процесса.
type MemoryStore struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{online: make(map[string]struct{})}
}

func (s *MemoryStore) IsOnline(_ context.Context, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

func (s *MemoryStore) SetOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, userID)
	return nil
}

// Count возвращает число пользователей в сети.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online)
}
