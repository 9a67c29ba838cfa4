package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// InMemoryStore provides an in-memory implementation of Store[T] for testing
type InMemoryStore[T any] struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key
func (s *InMemoryStore[T]) Get(ctx context.Context, key string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// Set stores a value by key
func (s *InMemoryStore[T]) Set(ctx context.Context, key string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
	return nil
}

// Delete removes keys
func (s *InMemoryStore[T]) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Scan iterates over all keys with the given prefix in ascending order
func (s *InMemoryStore[T]) Scan(ctx context.Context, prefix string, fn func(key string, value *T) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	copied := make(map[string][]byte, len(keys))
	for _, k := range keys {
		copied[k] = s.data[k]
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	for _, k := range keys {
		var value T
		if err := json.Unmarshal(copied[k], &value); err != nil {
			return err
		}
		if err := fn(k, &value); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for in-memory store
func (s *InMemoryStore[T]) Close() error {
	return nil
}
