package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

// Memory keeps values in a map. Nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get implements ports.KeyValueStore.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return slices.Clone(v), nil
}

// Set implements ports.KeyValueStore.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.values[key] = slices.Clone(value)
	m.mu.Unlock()

	return nil
}

// Close implements ports.KeyValueStore.
func (m *Memory) Close() error {
	return nil
}

// Name implements ports.HealthChecker.
func (m *Memory) Name() string {
	return "memory"
}

// Check implements ports.HealthChecker.
func (m *Memory) Check(context.Context) error {
	return nil
}
