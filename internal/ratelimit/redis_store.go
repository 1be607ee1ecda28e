package ratelimit

import (
	"context"
	"time"
)

// counterBackend is the subset of storage.RedisClient used by RedisStore.
type counterBackend interface {
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisStore shares counters between gateway instances.
type RedisStore struct {
	redis counterBackend
	now   func() time.Time
}

func NewRedisStore(redis counterBackend) *RedisStore {
	return &RedisStore{
		redis: redis,
		now:   time.Now,
	}
}

func (r *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	count, ttl, err := r.redis.IncrWithExpiry(ctx, key, window)
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, r.now().Add(ttl), nil
}
