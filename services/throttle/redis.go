package throttle

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"docrag/internal/models"
)

// Redis shares throttle state across processes.
type Redis struct {
	Client redis.Cmdable
	Policy Policy
	Prefix string
}

func NewRedis(client redis.Cmdable, policy Policy) *Redis {
	return &Redis{Client: client, Policy: policy, Prefix: "docrag:ingest:"}
}

func (r *Redis) Acquire(ctx context.Context, key string) error {
	if r.Policy.Cooldown > 0 {
		ok, err := r.Client.SetNX(ctx, r.Prefix+"cooldown:"+key, "1", r.Policy.Cooldown).Result()
		if err != nil {
			return fmt.Errorf("throttle cooldown: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s within cooldown", models.ErrIngestionThrottled, key)
		}
	}

	if r.Policy.QuotaLimit > 0 && r.Policy.QuotaWindow > 0 {
		quotaKey := r.Prefix + "quota:" + key
		n, err := r.Client.Incr(ctx, quotaKey).Result()
		if err != nil {
			return fmt.Errorf("throttle quota: %w", err)
		}
		if n == 1 {
			if err := r.Client.PExpire(ctx, quotaKey, r.Policy.QuotaWindow).Err(); err != nil {
				return fmt.Errorf("throttle quota expiry: %w", err)
			}
		}
		if n > int64(r.Policy.QuotaLimit) {
			return fmt.Errorf("%w: %s exceeded %d per %s", models.ErrIngestionThrottled, key, r.Policy.QuotaLimit, r.Policy.QuotaWindow)
		}
	}
	return nil
}
