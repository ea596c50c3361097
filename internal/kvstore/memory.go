package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-memory Store. Intended for tests and local runs without a
// database; production uses Postgres.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	cpy := make([]byte, len(v))
	copy(cpy, v)
	return cpy, nil
}

// Put stores value under key.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpy := make([]byte, len(value))
	copy(cpy, value)
	m.values[key] = cpy
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

var _ Store = (*Memory)(nil)
