package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTL cache profiles. These are dedup fingerprints, not reference data:
// losing an entry only weakens suppression, never correctness.
const (
	dailyQuoteTTL      = 12 * time.Hour
	dailyQuoteCapacity = 2048

	traceQuoteTTL      = 24 * time.Hour
	traceQuoteCapacity = 128
)

// TTL bundles the short-lived caches.
type TTL struct {
	dailyQuote *gocache.Cache
	traceQuote *gocache.Cache
}

// NewTTL creates the TTL caches.
func NewTTL() *TTL {
	return &TTL{
		dailyQuote: gocache.New(dailyQuoteTTL, 30*time.Minute),
		traceQuote: gocache.New(traceQuoteTTL, 30*time.Minute),
	}
}

// MarkDailyQuote records a per-day quote fingerprint. Returns true when the
// entry is new, false when processing for (symbol, date) was already seen
// this run.
func (t *TTL) MarkDailyQuote(symbol string, date time.Time) bool {
	key := symbol + ":" + date.Format("2006-01-02")
	if _, found := t.dailyQuote.Get(key); found {
		return false
	}
	if t.dailyQuote.ItemCount() >= dailyQuoteCapacity {
		t.dailyQuote.DeleteExpired()
		if t.dailyQuote.ItemCount() >= dailyQuoteCapacity {
			t.dailyQuote.Flush()
		}
	}
	t.dailyQuote.SetDefault(key, struct{}{})
	return true
}

// ClearDailyQuote drops all per-day fingerprints (closing pipeline step 11).
func (t *TTL) ClearDailyQuote() {
	t.dailyQuote.Flush()
}

// LastNotifiedPrice returns the debounce price for a trace-quote symbol.
func (t *TTL) LastNotifiedPrice(symbol string) (float64, bool) {
	v, found := t.traceQuote.Get(symbol)
	if !found {
		return 0, false
	}
	price, ok := v.(float64)
	return price, ok
}

// SetLastNotifiedPrice records the debounce price for a trace-quote symbol.
func (t *TTL) SetLastNotifiedPrice(symbol string, price float64) {
	if t.traceQuote.ItemCount() >= traceQuoteCapacity {
		t.traceQuote.DeleteExpired()
	}
	t.traceQuote.SetDefault(symbol, price)
}
