package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"docrag/internal/models"
)

type keyLimiters struct {
	cooldown *rate.Limiter
	quota    *rate.Limiter
	lastSeen time.Time
}

// Memory keeps per-key token buckets in process.
type Memory struct {
	Policy Policy
	Now    func() time.Time

	mu    sync.Mutex
	keys  map[string]*keyLimiters
	calls int
}

func NewMemory(policy Policy) *Memory {
	return &Memory{Policy: policy, Now: time.Now, keys: make(map[string]*keyLimiters)}
}

func (m *Memory) limiters(key string, now time.Time) *keyLimiters {
	l, ok := m.keys[key]
	if !ok {
		l = &keyLimiters{}
		if m.Policy.Cooldown > 0 {
			l.cooldown = rate.NewLimiter(rate.Every(m.Policy.Cooldown), 1)
		}
		if m.Policy.QuotaLimit > 0 && m.Policy.QuotaWindow > 0 {
			l.quota = rate.NewLimiter(rate.Every(m.Policy.QuotaWindow/time.Duration(m.Policy.QuotaLimit)), m.Policy.QuotaLimit)
		}
		m.keys[key] = l
	}
	l.lastSeen = now
	return l
}

func (m *Memory) Acquire(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	m.prune(now)
	l := m.limiters(key, now)

	if l.cooldown != nil && l.cooldown.TokensAt(now) < 1 {
		return fmt.Errorf("%w: %s within cooldown", models.ErrIngestionThrottled, key)
	}
	if l.quota != nil && l.quota.TokensAt(now) < 1 {
		return fmt.Errorf("%w: %s exceeded %d per %s", models.ErrIngestionThrottled, key, m.Policy.QuotaLimit, m.Policy.QuotaWindow)
	}
	if l.cooldown != nil {
		l.cooldown.AllowN(now, 1)
	}
	if l.quota != nil {
		l.quota.AllowN(now, 1)
	}
	return nil
}

// prune drops idle keys every 1024 calls.
func (m *Memory) prune(now time.Time) {
	m.calls++
	if m.calls%1024 != 0 {
		return
	}
	idle := max(m.Policy.Cooldown, m.Policy.QuotaWindow)
	for k, l := range m.keys {
		if now.Sub(l.lastSeen) > idle {
			delete(m.keys, k)
		}
	}
}
