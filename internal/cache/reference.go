// Package cache holds the in-memory hot read path: long-lived reference
// maps for master data and short-lived TTL caches for dedup fingerprints.
//
// The cache is authoritative only within one process; the database is the
// system of record across restarts. Writers go database-first and mirror
// here; a failed mirror is reconciled by the next Load.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// rwMap is a reader-writer-locked map. Readers copy values out; lock
// sections never await.
type rwMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func newRWMap[K comparable, V any]() *rwMap[K, V] {
	return &rwMap[K, V]{m: make(map[K]V)}
}

func (r *rwMap[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[key]
	return v, ok
}

func (r *rwMap[K, V]) Set(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = value
}

func (r *rwMap[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}

func (r *rwMap[K, V]) Replace(m map[K]V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = m
}

// Snapshot returns a shallow copy of the whole map.
func (r *rwMap[K, V]) Snapshot() map[K]V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[K]V, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}

func (r *rwMap[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Loader pulls durable state from the store on startup.
type Loader interface {
	AllStocks(ctx context.Context) ([]domain.Stock, error)
	AllLastDailyQuotes(ctx context.Context) ([]domain.LastDailyQuote, error)
	RecentIndices(ctx context.Context, days int) ([]domain.Index, error)
	AllQuoteHistoryRecords(ctx context.Context) ([]domain.QuoteHistoryRecord, error)
	RevenuesByMonth(ctx context.Context, yyyymm int64) ([]domain.Revenue, error)
}

// Reference is the process-wide shared reference cache.
type Reference struct {
	indices             *rwMap[string, domain.Index]
	stocks              *rwMap[string, domain.Stock]
	lastRevenues        *rwMap[int64, map[string]domain.Revenue]
	lastDailyQuotes     *rwMap[string, domain.LastDailyQuote]
	quoteHistoryRecords *rwMap[string, domain.QuoteHistoryRecord]

	log zerolog.Logger
}

// NewReference creates an empty reference cache.
func NewReference(log zerolog.Logger) *Reference {
	return &Reference{
		indices:             newRWMap[string, domain.Index](),
		stocks:              newRWMap[string, domain.Stock](),
		lastRevenues:        newRWMap[int64, map[string]domain.Revenue](),
		lastDailyQuotes:     newRWMap[string, domain.LastDailyQuote](),
		quoteHistoryRecords: newRWMap[string, domain.QuoteHistoryRecord](),
		log:                 log.With().Str("component", "cache").Logger(),
	}
}

// Load pulls durable state into every map. Idempotent; safe to call again
// to resync after a failed mirror.
func (r *Reference) Load(ctx context.Context, loader Loader) error {
	stocks, err := loader.AllStocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stocks: %w", err)
	}
	stockMap := make(map[string]domain.Stock, len(stocks))
	for _, s := range stocks {
		stockMap[s.Symbol] = s
	}
	r.stocks.Replace(stockMap)

	quotes, err := loader.AllLastDailyQuotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last daily quotes: %w", err)
	}
	quoteMap := make(map[string]domain.LastDailyQuote, len(quotes))
	for _, q := range quotes {
		quoteMap[q.Symbol] = q
	}
	r.lastDailyQuotes.Replace(quoteMap)

	indices, err := loader.RecentIndices(ctx, 30)
	if err != nil {
		return fmt.Errorf("failed to load indices: %w", err)
	}
	indexMap := make(map[string]domain.Index, len(indices))
	for _, i := range indices {
		indexMap[i.Key()] = i
	}
	r.indices.Replace(indexMap)

	records, err := loader.AllQuoteHistoryRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quote history records: %w", err)
	}
	recordMap := make(map[string]domain.QuoteHistoryRecord, len(records))
	for _, rec := range records {
		recordMap[rec.SecurityCode] = rec
	}
	r.quoteHistoryRecords.Replace(recordMap)

	// Two most recent months of revenue.
	now := time.Now()
	for _, back := range []int{0, 1} {
		month := now.AddDate(0, -back, 0)
		yyyymm := int64(month.Year()*100 + int(month.Month()))
		revenues, err := loader.RevenuesByMonth(ctx, yyyymm)
		if err != nil {
			return fmt.Errorf("failed to load revenues %d: %w", yyyymm, err)
		}
		revMap := make(map[string]domain.Revenue, len(revenues))
		for _, rev := range revenues {
			revMap[rev.SecurityCode] = rev
		}
		r.lastRevenues.Set(yyyymm, revMap)
	}

	r.log.Info().
		Int("stocks", r.stocks.Len()).
		Int("last_quotes", r.lastDailyQuotes.Len()).
		Int("indices", r.indices.Len()).
		Int("history_records", r.quoteHistoryRecords.Len()).
		Msg("reference cache loaded")
	return nil
}

// GetStock returns one stock master row.
func (r *Reference) GetStock(symbol string) (domain.Stock, bool) {
	return r.stocks.Get(symbol)
}

// SetStock mirrors one stock master row.
func (r *Reference) SetStock(s domain.Stock) {
	r.stocks.Set(s.Symbol, s)
}

// DeleteStock drops one stock master row (delisting sweep).
func (r *Reference) DeleteStock(symbol string) {
	r.stocks.Delete(symbol)
}

// Stocks returns a snapshot of the stock master map.
func (r *Reference) Stocks() map[string]domain.Stock {
	return r.stocks.Snapshot()
}

// GetLastDailyQuote returns one symbol's most recent quote.
func (r *Reference) GetLastDailyQuote(symbol string) (domain.LastDailyQuote, bool) {
	return r.lastDailyQuotes.Get(symbol)
}

// SetLastDailyQuote mirrors one symbol's most recent quote.
func (r *Reference) SetLastDailyQuote(q domain.LastDailyQuote) {
	r.lastDailyQuotes.Set(q.Symbol, q)
}

// SetStockLastPrice mutates a single last-quote entry in place rather than
// replacing the map.
func (r *Reference) SetStockLastPrice(dq domain.DailyQuote) {
	r.lastDailyQuotes.Set(dq.Symbol, domain.LastDailyQuote{DailyQuote: dq})
}

// LastDailyQuotes returns a snapshot of the last-quote map.
func (r *Reference) LastDailyQuotes() map[string]domain.LastDailyQuote {
	return r.lastDailyQuotes.Snapshot()
}

// GetIndex returns one index entry.
func (r *Reference) GetIndex(key string) (domain.Index, bool) {
	return r.indices.Get(key)
}

// SetIndex mirrors one index entry.
func (r *Reference) SetIndex(i domain.Index) {
	r.indices.Set(i.Key(), i)
}

// GetQuoteHistoryRecord returns one symbol's rolling extremes.
func (r *Reference) GetQuoteHistoryRecord(symbol string) (domain.QuoteHistoryRecord, bool) {
	return r.quoteHistoryRecords.Get(symbol)
}

// SetQuoteHistoryRecord mirrors one symbol's rolling extremes.
func (r *Reference) SetQuoteHistoryRecord(rec domain.QuoteHistoryRecord) {
	r.quoteHistoryRecords.Set(rec.SecurityCode, rec)
}

// GetRevenue returns one symbol's revenue for a month.
func (r *Reference) GetRevenue(yyyymm int64, symbol string) (domain.Revenue, bool) {
	month, ok := r.lastRevenues.Get(yyyymm)
	if !ok {
		return domain.Revenue{}, false
	}
	rev, ok := month[symbol]
	return rev, ok
}

// SetRevenues replaces one month's revenue map.
func (r *Reference) SetRevenues(yyyymm int64, revenues []domain.Revenue) {
	revMap := make(map[string]domain.Revenue, len(revenues))
	for _, rev := range revenues {
		revMap[rev.SecurityCode] = rev
	}
	r.lastRevenues.Set(yyyymm, revMap)
}
