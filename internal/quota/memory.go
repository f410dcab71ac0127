package quota

import (
	"context"
	"sort"
	"sync"
)

// MemoryLedger keeps counters in process.
type MemoryLedger struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counts: make(map[string]int)}
}

func (m *MemoryLedger) Active(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID], nil
}

func (m *MemoryLedger) Increment(_ context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	m.counts[userID] += n
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) Decrement(_ context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID] = max(m.counts[userID]-n, 0)
	return nil
}

func (m *MemoryLedger) Set(_ context.Context, userID string, n int) error {
	m.mu.Lock()
	m.counts[userID] = max(n, 0)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) Users(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counts))
	for id := range m.counts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
