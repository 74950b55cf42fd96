package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/twstock/internal/domain"
)

type fakeLoader struct {
	stocks   []domain.Stock
	quotes   []domain.LastDailyQuote
	indices  []domain.Index
	records  []domain.QuoteHistoryRecord
	revenues map[int64][]domain.Revenue
}

func (f *fakeLoader) AllStocks(context.Context) ([]domain.Stock, error) { return f.stocks, nil }
func (f *fakeLoader) AllLastDailyQuotes(context.Context) ([]domain.LastDailyQuote, error) {
	return f.quotes, nil
}
func (f *fakeLoader) RecentIndices(context.Context, int) ([]domain.Index, error) {
	return f.indices, nil
}
func (f *fakeLoader) AllQuoteHistoryRecords(context.Context) ([]domain.QuoteHistoryRecord, error) {
	return f.records, nil
}
func (f *fakeLoader) RevenuesByMonth(_ context.Context, yyyymm int64) ([]domain.Revenue, error) {
	return f.revenues[yyyymm], nil
}

func TestReferenceLoad(t *testing.T) {
	loader := &fakeLoader{
		stocks: []domain.Stock{
			{Symbol: "2330", Name: "台積電", Market: domain.MarketListed},
			{Symbol: "2317", Name: "鴻海", Market: domain.MarketListed},
		},
		quotes: []domain.LastDailyQuote{
			{DailyQuote: domain.DailyQuote{Symbol: "2330", ClosingPrice: 100}},
		},
		records: []domain.QuoteHistoryRecord{
			{SecurityCode: "2330", MaximumPrice: 120},
		},
	}

	ref := NewReference(zerolog.Nop())
	require.NoError(t, ref.Load(context.Background(), loader))

	stock, ok := ref.GetStock("2330")
	require.True(t, ok)
	assert.Equal(t, "台積電", stock.Name)
	assert.Len(t, ref.Stocks(), 2)

	quote, ok := ref.GetLastDailyQuote("2330")
	require.True(t, ok)
	assert.Equal(t, 100.0, quote.ClosingPrice)

	rec, ok := ref.GetQuoteHistoryRecord("2330")
	require.True(t, ok)
	assert.Equal(t, 120.0, rec.MaximumPrice)
}

func TestReferenceLoadReplacesStale(t *testing.T) {
	ref := NewReference(zerolog.Nop())
	ref.SetStock(domain.Stock{Symbol: "9999", Name: "gone"})

	require.NoError(t, ref.Load(context.Background(), &fakeLoader{
		stocks: []domain.Stock{{Symbol: "2330"}},
	}))

	_, ok := ref.GetStock("9999")
	assert.False(t, ok)
	_, ok = ref.GetStock("2330")
	assert.True(t, ok)
}

func TestSetStockLastPrice(t *testing.T) {
	ref := NewReference(zerolog.Nop())
	q := domain.DailyQuote{Symbol: "2330", ClosingPrice: 101.5}
	ref.SetStockLastPrice(q)

	got, ok := ref.GetLastDailyQuote("2330")
	require.True(t, ok)
	assert.Equal(t, 101.5, got.ClosingPrice)
}

func TestMarkDailyQuoteDedup(t *testing.T) {
	ttl := NewTTL()
	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	assert.True(t, ttl.MarkDailyQuote("2330", date))
	assert.False(t, ttl.MarkDailyQuote("2330", date))
	// Different day, different fingerprint.
	assert.True(t, ttl.MarkDailyQuote("2330", date.AddDate(0, 0, 1)))
	assert.True(t, ttl.MarkDailyQuote("2317", date))

	ttl.ClearDailyQuote()
	assert.True(t, ttl.MarkDailyQuote("2330", date))
}

func TestLastNotifiedPrice(t *testing.T) {
	ttl := NewTTL()

	_, ok := ttl.LastNotifiedPrice("2330")
	assert.False(t, ok)

	ttl.SetLastNotifiedPrice("2330", 98.5)
	price, ok := ttl.LastNotifiedPrice("2330")
	require.True(t, ok)
	assert.Equal(t, 98.5, price)
}
