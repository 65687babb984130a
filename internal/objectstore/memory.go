package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	now     func() time.Time
}

type memObject struct {
	body     []byte
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), now: time.Now}
}

func (m *MemoryStore) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{body: append([]byte(nil), body...), modified: m.now()}
	return nil
}

func (m *MemoryStore) GetObjectURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s: %w", key, common.ErrNotFound)
	}
	return "memory://" + key, nil
}

func (m *MemoryStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(o.body)), LastModified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns a copy of the stored body.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.body...), true
}
