package storage

import (
	"maps"
	"sync"
)

// MemoryStore keeps state in process memory. Used by tests and by agents
// that should forget their session on restart.
type MemoryStore struct {
	watchers
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value for key
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, existed := s.data[key]
	s.data[key] = value
	s.mu.Unlock()

	if !existed || old != value {
		s.notify(Change{Key: key, OldValue: old, Value: value})
	}
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if existed {
		s.notify(Change{Key: key, OldValue: old, Deleted: true})
	}
	return nil
}

// Watch registers fn for changes
func (s *MemoryStore) Watch(fn func(Change)) func() {
	return s.add(fn)
}

// Snapshot returns a copy of all entries
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Close marks the store closed; later writes fail with ErrClosed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
