package fugle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/twstock/internal/sources"
)

func newTestLimiter(limit int, window time.Duration) (*windowLimiter, *time.Time) {
	l := newWindowLimiter(limit, window)
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAdmitsUpToLimit(t *testing.T) {
	l, now := newTestLimiter(60, time.Minute)

	// 60 requests spread across 45 seconds all pass.
	for i := 0; i < 60; i++ {
		require.NoError(t, l.acquire())
		*now = now.Add(750 * time.Millisecond)
	}

	// The 61st inside the window fails fast with the time until the oldest
	// admission ages out: 60s window minus the 45s elapsed.
	err := l.acquire()
	var limited *sources.LocallyRateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 15*time.Second, limited.RetryAfter)
}

func TestLimiterWindowReopens(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)

	require.NoError(t, l.acquire())
	require.NoError(t, l.acquire())
	require.Error(t, l.acquire())

	// Once the oldest stamp falls out of the window a permit frees up.
	*now = now.Add(61 * time.Second)
	assert.NoError(t, l.acquire())
}

func TestLimiterNeverExceedsBudgetInWindow(t *testing.T) {
	l, now := newTestLimiter(60, time.Minute)

	admitted := 0
	// Hammer for two minutes at 10 req/s; count admissions per sliding
	// minute.
	var stamps []time.Time
	for i := 0; i < 1200; i++ {
		if err := l.acquire(); err == nil {
			admitted++
			stamps = append(stamps, *now)
		}
		*now = now.Add(100 * time.Millisecond)
	}
	require.NotZero(t, admitted)

	for i := range stamps {
		count := 1
		for j := i + 1; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < time.Minute {
				count++
			}
		}
		assert.LessOrEqual(t, count, 60)
	}
}

func TestLimiterCooldown(t *testing.T) {
	l, now := newTestLimiter(60, time.Minute)

	l.cooldown(30 * time.Second)
	err := l.acquire()
	var limited *sources.LocallyRateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 30*time.Second, limited.RetryAfter)

	*now = now.Add(31 * time.Second)
	assert.NoError(t, l.acquire())
}
