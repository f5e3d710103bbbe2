// Package storage is the client's durable key-value blob store.
package storage

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("key not found")

// Storage keeps one opaque blob per key. A nil Storage means no persistent
// storage is available on this client.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}
