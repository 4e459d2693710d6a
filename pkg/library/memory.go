package library

import (
	"context"
	"sync"
)

// MemoryBackend keeps the library in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[Table]map[string][]byte
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[Table]map[string][]byte)}
}

func (m *MemoryBackend) PutIfAbsent(_ context.Context, table Table, id string, value []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string][]byte)
		m.tables[table] = t
	}
	if existing, ok := t[id]; ok {
		return clone(existing), false, nil
	}
	t[id] = clone(value)
	return clone(value), true, nil
}

func (m *MemoryBackend) Get(_ context.Context, table Table, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Clear removes every entry.
func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[Table]map[string][]byte)
}

func (m *MemoryBackend) Close() error { return nil }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
