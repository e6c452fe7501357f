package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage is a thread-safe in-memory Storage, suitable for tests and
// local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of all stored entries in insertion order.
func (s *MemoryStorage) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// ByAction returns stored entries matching the given action.
func (s *MemoryStorage) ByAction(action string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
