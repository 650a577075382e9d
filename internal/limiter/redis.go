package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces slot counters.
const KeyPrefix = "concurrency:"

// DefaultSlotTTL expires a counter nobody touched for a while, so slots leaked
// by a crashed process come back on their own.
const DefaultSlotTTL = 5 * time.Minute

// Redis is a limiter backed by an atomic INCR/DECR counter per user.
type Redis struct {
	rdb counter
	max int64
	ttl time.Duration
	log *zap.Logger
}

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedis constructs a Redis-backed limiter. max <= 0 uses DefaultMaxConcurrent,
// ttl <= 0 uses DefaultSlotTTL.
func NewRedis(rdb counter, max int64, ttl time.Duration, log *zap.Logger) *Redis {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, max: max, ttl: ttl, log: log}
}

// Acquire increments the user's counter and rolls it back when over the cap.
// A denial stays a denial when the rollback fails; the TTL reclaims the extra count.
func (l *Redis) Acquire(ctx context.Context, userID string) (bool, int64, error) {
	key := KeyPrefix + userID
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
		return false, 0, l.undo(ctx, key, err)
	}
	if n > l.max {
		if err := l.rdb.Decr(ctx, key).Err(); err != nil {
			l.log.Warn("slot rollback failed", zap.String("user", userID), zap.Error(err))
			return false, n, nil
		}
		return false, n - 1, nil
	}
	return true, n, nil
}

func (l *Redis) undo(ctx context.Context, key string, cause error) error {
	_ = l.rdb.Decr(ctx, key).Err()
	return cause
}

// Release decrements the user's counter, clamping it at zero.
func (l *Redis) Release(ctx context.Context, userID string) error {
	key := KeyPrefix + userID
	n, err := l.rdb.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n < 0 {
		return l.rdb.Set(ctx, key, 0, l.ttl).Err()
	}
	return nil
}
