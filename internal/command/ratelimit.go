package command

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a sender exceeds its command budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter is a sliding window limiter keyed by sender. A limit of zero
// allows everything. A nil *RateLimiter is valid and allows everything.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	events map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter allows limit events per key within window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		limit:  max(limit, 0),
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// SetLimit changes the per-key limit. Recorded events are kept.
func (rl *RateLimiter) SetLimit(limit int) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit = max(limit, 0)
}

// Allow records one event for key, or returns ErrRateLimited when the
// window is already full.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.limit == 0 {
		return nil
	}

	now := rl.now()
	rl.evict(now)

	events := rl.events[key]
	if len(events) >= rl.limit {
		return ErrRateLimited
	}
	rl.events[key] = append(events, now)
	return nil
}

// evict drops events older than the window and forgets idle keys.
func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	for key, events := range rl.events {
		i := 0
		for i < len(events) && !events[i].After(cutoff) {
			i++
		}
		if i == len(events) {
			delete(rl.events, key)
			continue
		}
		if i > 0 {
			rl.events[key] = events[i:]
		}
	}
}
