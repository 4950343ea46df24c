package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a generic, thread-safe, in-memory Store.
// Entries live until Clear; there is no size-based eviction.
type InMemoryStore[K comparable, P any] struct {
	mu   sync.RWMutex
	data map[K]Entry[P]
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore[K comparable, P any]() *InMemoryStore[K, P] {
	return &InMemoryStore[K, P]{
		data: make(map[K]Entry[P]),
	}
}

// Get returns a copy of the entry for key, or nil if absent.
func (s *InMemoryStore[K, P]) Get(_ context.Context, key K) (*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put replaces the entry for key in a single assignment.
func (s *InMemoryStore[K, P]) Put(_ context.Context, key K, payload P, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry[P]{Payload: payload, FetchedAt: now}
	return nil
}

// Clear empties every partition.
func (s *InMemoryStore[K, P]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[K]Entry[P])
	return nil
}

// Len returns the number of populated partitions.
func (s *InMemoryStore[K, P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
