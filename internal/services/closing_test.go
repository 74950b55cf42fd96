package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/quotes"
	"github.com/aristath/twstock/internal/sources"
)

type fakeExchange struct {
	quotes []domain.DailyQuote
	err    error
	calls  int
}

func (f *fakeExchange) FetchClosing(context.Context, time.Time) ([]domain.DailyQuote, error) {
	f.calls++
	return f.quotes, f.err
}

func TestClosingRunHoliday(t *testing.T) {
	twse := &fakeExchange{}
	tpex := &fakeExchange{}
	// Every later collaborator is nil: the pipeline must return before
	// touching any of them when the day produced zero quotes.
	s := NewClosingService(
		[]sources.DailyQuoteSource{twse, tpex}, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		zerolog.Nop(),
	)

	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, twse.calls)
	assert.Equal(t, 1, tpex.calls)
}

func TestClosingRunAbortsOnFetchError(t *testing.T) {
	twse := &fakeExchange{err: errors.New("boom")}
	s := NewClosingService(
		[]sources.DailyQuoteSource{twse}, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		zerolog.Nop(),
	)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}

func newAnalyticsService(stocks ...domain.Stock) *ClosingService {
	ref := cache.NewReference(zerolog.Nop())
	for _, st := range stocks {
		ref.SetStock(st)
	}
	return &ClosingService{reference: ref, log: zerolog.Nop()}
}

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

// window builds a newest-first price history with the given closes.
func window(closes ...float64) []quotes.PriceHistory {
	out := make([]quotes.PriceHistory, len(closes))
	for i, c := range closes {
		out[i] = quotes.PriceHistory{
			ClosingPrice: c,
			HighestPrice: c,
			LowestPrice:  c,
			Date:         day(1),
		}
	}
	return out
}

func TestFillAnalyticsMovingAverageNeedsEnoughCloses(t *testing.T) {
	s := newAnalyticsService()

	q := domain.DailyQuote{Symbol: "2330", ClosingPrice: 104}
	s.fillAnalytics(&q, window(104, 103, 102, 101))
	assert.Zero(t, q.MovingAverage5)

	q = domain.DailyQuote{Symbol: "2330", ClosingPrice: 104}
	s.fillAnalytics(&q, window(104, 103, 102, 101, 100))
	assert.Equal(t, 102.0, q.MovingAverage5)
	assert.Zero(t, q.MovingAverage10)
}

func TestFillAnalyticsRounding(t *testing.T) {
	s := newAnalyticsService()
	q := domain.DailyQuote{Symbol: "2330", ClosingPrice: 10.10}
	s.fillAnalytics(&q, window(10.10, 10.15, 10.21, 10.17, 10.33))
	// mean = 10.192
	assert.Equal(t, 10.19, q.MovingAverage5)
}

func TestFillAnalyticsYearExtremes(t *testing.T) {
	s := newAnalyticsService()
	hist := []quotes.PriceHistory{
		{ClosingPrice: 100, HighestPrice: 102, LowestPrice: 99, Date: day(3)},
		{ClosingPrice: 95, HighestPrice: 96, LowestPrice: 90, Date: day(2)},
		{ClosingPrice: 110, HighestPrice: 115, LowestPrice: 108, Date: day(1)},
	}
	q := domain.DailyQuote{Symbol: "2330", ClosingPrice: 100}
	s.fillAnalytics(&q, hist)

	assert.Equal(t, 115.0, q.MaximumPriceInYear)
	assert.Equal(t, day(1), q.MaximumPriceInYearDateOn)
	assert.Equal(t, 90.0, q.MinimumPriceInYear)
	assert.Equal(t, day(2), q.MinimumPriceInYearDateOn)
	assert.Equal(t, 101.67, q.AveragePriceInYear)
}

func TestFillAnalyticsPriceToBook(t *testing.T) {
	s := newAnalyticsService(domain.Stock{
		Symbol:                "2330",
		Market:                domain.MarketListed,
		NetAssetValuePerShare: 50,
	})
	q := domain.DailyQuote{Symbol: "2330", ClosingPrice: 100}
	s.fillAnalytics(&q, nil)
	assert.Equal(t, 2.0, q.PriceToBookRatio)
}

func TestBreakoutRecordFirstObservation(t *testing.T) {
	s := newAnalyticsService()
	q := domain.DailyQuote{
		Symbol:           "2330",
		Date:             day(24),
		HighestPrice:     100,
		LowestPrice:      100,
		ClosingPrice:     100,
		PriceToBookRatio: 2.0,
	}

	rec, changed := s.breakoutRecord(&q)
	require.True(t, changed)
	assert.Equal(t, "2330", rec.SecurityCode)
	assert.Equal(t, 100.0, rec.MaximumPrice)
	assert.Equal(t, 100.0, rec.MinimumPrice)
	assert.Equal(t, 2.0, rec.MaximumPBR)
	assert.Equal(t, 2.0, rec.MinimumPBR)
	assert.Equal(t, day(24), rec.MaximumPriceDateOn)
}

func TestBreakoutRecordStrictComparison(t *testing.T) {
	s := newAnalyticsService()
	s.reference.SetQuoteHistoryRecord(domain.QuoteHistoryRecord{
		SecurityCode: "2330",
		MaximumPrice: 120,
		MinimumPrice: 80,
		MaximumPBR:   3,
		MinimumPBR:   1.5,
	})

	// Inside the known range: no record.
	q := domain.DailyQuote{
		Symbol: "2330", Date: day(24),
		HighestPrice: 119, LowestPrice: 81, PriceToBookRatio: 2,
	}
	_, changed := s.breakoutRecord(&q)
	assert.False(t, changed)

	// Equal is not a breakout.
	q.HighestPrice, q.LowestPrice = 120, 80
	_, changed = s.breakoutRecord(&q)
	assert.False(t, changed)

	// Strictly above on the high side only.
	q.HighestPrice = 120.0001
	rec, changed := s.breakoutRecord(&q)
	require.True(t, changed)
	assert.Equal(t, 120.0001, rec.MaximumPrice)
	assert.Equal(t, 80.0, rec.MinimumPrice)
}

func TestBreakoutRecordIgnoresZeroPBR(t *testing.T) {
	s := newAnalyticsService()
	s.reference.SetQuoteHistoryRecord(domain.QuoteHistoryRecord{
		SecurityCode: "2330",
		MaximumPrice: 120, MinimumPrice: 80,
		MaximumPBR: 3, MinimumPBR: 1.5,
	})
	q := domain.DailyQuote{
		Symbol: "2330", Date: day(24),
		HighestPrice: 100, LowestPrice: 90, PriceToBookRatio: 0,
	}
	_, changed := s.breakoutRecord(&q)
	assert.False(t, changed)
}

func TestSma(t *testing.T) {
	assert.Zero(t, sma([]float64{1, 2, 3}, 5))
	assert.Equal(t, 3.0, sma([]float64{1, 2, 3, 4, 5}, 5))
	// Only the most recent k closes count.
	assert.Equal(t, 4.0, sma([]float64{1, 2, 3, 4, 5}, 3))
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 1.2346, round4(1.23456))
	assert.Equal(t, 100.0, round4(100.00004))
}
