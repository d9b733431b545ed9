package storage

import (
	"context"
	"sync"
)

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store. With a quota, the summed size of keys
// and values is capped and Set returns ErrQuotaExceeded past it.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	size  int
	quota int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithQuota caps the store at n bytes. Zero means unlimited.
func WithQuota(n int) MemoryOption {
	return func(s *MemoryStore) { s.quota = n }
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{data: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.size + len(key) + len(value)
	if old, ok := s.data[key]; ok {
		size -= len(key) + len(old)
	}
	if s.quota > 0 && size > s.quota {
		return ErrQuotaExceeded
	}

	s.data[key] = value
	s.size = size
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.data, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error { return nil }
