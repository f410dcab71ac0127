package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory keeps blobs in a map.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
	data    map[string][]byte
	Now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object), data: make(map[string][]byte), Now: time.Now}
}

func (m *Memory) Put(_ context.Context, keyHint string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[keyHint] = append([]byte(nil), data...)
	m.objects[keyHint] = Object{Key: keyHint, Size: int64(len(data)), LastModified: m.Now()}
	return keyHint, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), d...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.objects, key)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}
