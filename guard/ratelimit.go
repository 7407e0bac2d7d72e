package guard

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window request budget per identifier. The
// window retains only the timestamps inside it; the count is compared to the
// limit before the new timestamp is appended, and the whole sequence runs
// under one lock so concurrent requests cannot jointly exceed the limit.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter constructs an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string][]time.Time), now: time.Now}
}

// Check records one request for the identifier, failing with *RateLimitError
// when the window already holds limit timestamps. A limit <= 0 disables the
// check.
func (l *RateLimiter) Check(identifier string, limit int, window time.Duration) error {
	if limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	live := l.windows[identifier][:0]
	for _, ts := range l.windows[identifier] {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= limit {
		l.windows[identifier] = live
		return &RateLimitError{
			Identifier: identifier,
			Limit:      limit,
			Window:     window,
			RetryAfter: live[0].Add(window).Sub(now),
		}
	}

	l.windows[identifier] = append(live, now)
	return nil
}

// Reset clears the window of an identifier.
func (l *RateLimiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, identifier)
}
