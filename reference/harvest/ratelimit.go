package harvest

import (
	"context"
	"sync"
	"time"
)

// RateLimiter allows at most limit calls in any sliding window
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a sliding-window limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  max(limit, 1),
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until a call is allowed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay := r.reserve()
		if delay <= 0 {
			return nil
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}

// reserve records a call and returns 0, or returns how long until the oldest call expires
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.stamps[:0]
	for _, s := range r.stamps {
		if now.Sub(s) < r.window {
			kept = append(kept, s)
		}
	}
	r.stamps = kept

	if len(r.stamps) < r.limit {
		r.stamps = append(r.stamps, now)
		return 0
	}
	return r.window - now.Sub(r.stamps[0])
}
