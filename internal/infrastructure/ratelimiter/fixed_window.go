package ratelimiter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FixedWindowRateLimiter counts events per key in aligned windows. The
// websocket gateway uses it to cap inbound events per connection.
type FixedWindowRateLimiter struct {
	mu     sync.Mutex
	counts map[string]*windowCount
	limit  int
	window time.Duration
	clock  clockwork.Clock
}

type windowCount struct {
	count   int
	resetAt time.Time
}

func NewFixedWindowRateLimiter(limit int, window time.Duration) *FixedWindowRateLimiter {
	return NewFixedWindowRateLimiterWithClock(limit, window, clockwork.NewRealClock())
}

func NewFixedWindowRateLimiterWithClock(limit int, window time.Duration, clock clockwork.Clock) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// Allow reports whether key may send another event, and if not how long until
// its window resets. A non-positive limit disables limiting.
func (rl *FixedWindowRateLimiter) Allow(key string) (bool, time.Duration) {
	if rl.limit <= 0 {
		return true, 0
	}

	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	data, ok := rl.counts[key]
	if !ok || !now.Before(data.resetAt) {
		rl.counts[key] = &windowCount{
			count:   1,
			resetAt: now.Truncate(rl.window).Add(rl.window),
		}
		return true, 0
	}

	if data.count >= rl.limit {
		return false, data.resetAt.Sub(now)
	}
	data.count++
	return true, 0
}

// Forget drops the key's window, e.g. when a connection closes.
func (rl *FixedWindowRateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counts, key)
}

func (rl *FixedWindowRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counts)
}
