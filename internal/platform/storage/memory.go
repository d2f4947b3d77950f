package storage

import (
	"bytes"
	"sync"
)

// MemoryKV keeps entries in process memory. It is used by tests and by
// `erpctl --ephemeral`.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *MemoryKV {
	return &MemoryKV{entries: map[string][]byte{}}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (m *MemoryKV) Put(entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range entries {
		m.entries[key] = bytes.Clone(value)
	}
	return nil
}

func (m *MemoryKV) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Len is the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryKV) Close() error {
	return nil
}
