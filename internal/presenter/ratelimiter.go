package presenter

import (
	"sync"
	"time"
)

// DefaultGap is the minimum interval between messenger API calls for a
// single conversation (spec default: 1000ms).
const DefaultGap = 1000 * time.Millisecond

// RateLimiter tracks, per conversation key, the earliest instant another
// API call is permitted, and blocks callers until that instant.
type RateLimiter struct {
	gap time.Duration

	mu    sync.Mutex
	next  map[string]time.Time
	sleep func(time.Duration)
	now   func() time.Time
}

// NewRateLimiter returns a limiter enforcing gap between calls per key.
func NewRateLimiter(gap time.Duration) *RateLimiter {
	return &RateLimiter{
		gap:   gap,
		next:  make(map[string]time.Time),
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Wait blocks until the next call for key is permitted, then reserves the
// following window.
func (r *RateLimiter) Wait(key string) {
	r.mu.Lock()
	earliest, ok := r.next[key]
	now := r.now()
	r.mu.Unlock()

	if ok && now.Before(earliest) {
		r.sleep(earliest.Sub(now))
		now = r.now()
	}

	r.mu.Lock()
	r.next[key] = now.Add(r.gap)
	r.mu.Unlock()
}
