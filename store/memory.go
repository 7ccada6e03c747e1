package store

import (
	"context"
	"sync"
)

// memoryStore is an in-process snapshot store. It backs tests and degraded
// operation when no Redis is configured.
type memoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	capBytes int
	used     int
}

// NewMemoryStore creates an in-memory store. capBytes limits the total
// stored size; zero means unlimited. A save past the cap fails with
// ErrStorageFull, mirroring a full durable store.
func NewMemoryStore(capBytes int) Store {
	return &memoryStore{data: make(map[string][]byte), capBytes: capBytes}
}

func (s *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *memoryStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.used - len(s.data[key]) + len(value)
	if s.capBytes > 0 && next > s.capBytes {
		return ErrStorageFull
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.used = next
	s.data[key] = stored
	return nil
}
