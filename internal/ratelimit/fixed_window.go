package ratelimit

import (
	"context"
	"fmt"
	"time"
)

type FixedWindowLimiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func NewFixedWindow(store Store, policy Policy) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// Allow counts one request for key (the client IP) against the class quota.
func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	count, resetAt, err := f.store.Hit(ctx, f.storeKey(key), f.policy.Window)
	if err != nil {
		return Result{
			Allowed:   false,
			Limit:     f.policy.Max,
			Remaining: 0,
			ResetAt:   f.now().Add(f.policy.Window),
		}, err
	}

	remaining := f.policy.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(f.policy.Max),
		Limit:     f.policy.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Counters are namespaced by class so the same IP never shares a counter across classes.
func (f *FixedWindowLimiter) storeKey(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", f.policy.Class, key)
}

func (f *FixedWindowLimiter) Policy() Policy {
	return f.policy
}
