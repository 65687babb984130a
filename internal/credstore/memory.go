package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps secrets in process memory only. It suits tests and
// ephemeral sessions where the master key must not outlive the process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[name]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, name string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[name] = value
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, name)
	return nil
}
