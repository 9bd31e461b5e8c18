package prefs

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Source.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates a Memory source seeded with initial values.
func NewMemory(initial map[string]string) *Memory {
	values := maps.Clone(initial)
	if values == nil {
		values = make(map[string]string)
	}
	return &Memory{values: values}
}

// Snapshot returns a copy of the current values.
func (m *Memory) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewSnapshot(m.values), nil
}

// Set validates and stores a value.
func (m *Memory) Set(_ context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
