package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-client/credentials"
)

var _ credentials.KV = (*MemoryStore)(nil)

// MemoryStore keeps values for the life of the process.
type MemoryStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) SetAll(_ context.Context, values map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Len is the number of stored keys.
func (m *MemoryStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}
