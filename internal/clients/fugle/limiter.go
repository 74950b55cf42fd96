package fugle

import (
	"sync"
	"time"

	"github.com/aristath/twstock/internal/sources"
)

// windowLimiter is a local sliding-window rate limiter: at most `limit`
// admissions per `window`, with a forced cooldown when the remote answers
// 429. Rejections are fail-fast so the multiplexer can advance.
type windowLimiter struct {
	mu           sync.Mutex
	limit        int
	window       time.Duration
	stamps       []time.Time
	blockedUntil time.Time

	now func() time.Time // swappable clock for tests
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// acquire admits one request or returns LocallyRateLimitedError.
func (l *windowLimiter) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Drop stamps that fell out of the window.
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if !l.blockedUntil.IsZero() && now.Before(l.blockedUntil) {
		return &sources.LocallyRateLimitedError{RetryAfter: l.blockedUntil.Sub(now)}
	}
	l.blockedUntil = time.Time{}

	if len(l.stamps) >= l.limit {
		// The window reopens when the oldest admission ages out.
		l.blockedUntil = l.stamps[0].Add(l.window)
		return &sources.LocallyRateLimitedError{RetryAfter: l.blockedUntil.Sub(now)}
	}

	l.stamps = append(l.stamps, now)
	return nil
}

// cooldown forces the limiter closed, used when the remote answers 429.
func (l *windowLimiter) cooldown(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockedUntil = l.now().Add(d)
}
