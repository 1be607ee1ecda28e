package ratelimit

import (
	"context"
	"time"
)

// Store keeps per-key fixed-window counters.
type Store interface {
	// Hit records one event for key and returns the count within the current
	// window together with the time that window ends. The window starts at the
	// first hit for a key.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limiter admits or rejects one event per call for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)

	// Policy reports the class, quota and rejection message the limiter enforces.
	Policy() Policy
}

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}
