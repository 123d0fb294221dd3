package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "everkeep/pkg/domain"
)

// Key TTLs are padded past their window so a counter never expires while its
// window is still current.
const (
	dayKeyTTL   = 48 * time.Hour
	monthKeyTTL = 35 * 24 * time.Hour
)

// RedisLimiter counts generations in Redis so the limit holds across
// instances.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, profileID id.ProfileID, tier id.PlanTier) (Decision, error) {
	day, month := windowKeys(profileID, time.Now().UTC())
	counts, err := l.client.MGet(ctx, day, month).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("read generation counters: %w", err)
	}
	return decide(parseCount(counts[0]), parseCount(counts[1]), limitsFor(tier)), nil
}

func (l *RedisLimiter) Record(ctx context.Context, profileID id.ProfileID) error {
	day, month := windowKeys(profileID, time.Now().UTC())
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, day)
	pipe.Expire(ctx, day, dayKeyTTL)
	pipe.Incr(ctx, month)
	pipe.Expire(ctx, month, monthKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

func parseCount(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0
	}
	return n
}
