// Package throttle bounds how often one document may be ingested.
package throttle

import (
	"context"
	"time"
)

// Limiter admits or rejects an ingestion attempt for a key. A rejected attempt
// returns an error wrapping models.ErrIngestionThrottled.
type Limiter interface {
	Acquire(ctx context.Context, key string) error
}

// Policy allows one attempt per Cooldown and at most QuotaLimit attempts per QuotaWindow.
type Policy struct {
	Cooldown    time.Duration
	QuotaWindow time.Duration
	QuotaLimit  int
}

// Unlimited admits every attempt.
type Unlimited struct{}

func (Unlimited) Acquire(context.Context, string) error { return nil }
