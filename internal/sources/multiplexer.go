package sources

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Multiplexer rotates across an ordered list of quote sources to spread
// load and tolerate single-source outages.
//
// One monotonic counter drives slot selection: every call advances it once
// per attempt, so consecutive calls start on different sources and each
// caller gets a distinct slot with zero coordination.
type Multiplexer struct {
	sites []QuoteSource
	index atomic.Uint64
	log   zerolog.Logger
}

// NewMultiplexer creates a multiplexer over the given ordered sources.
func NewMultiplexer(log zerolog.Logger, sites ...QuoteSource) *Multiplexer {
	return &Multiplexer{
		sites: sites,
		log:   log.With().Str("component", "multiplexer").Logger(),
	}
}

// FetchQuote tries each source once, starting from the rotating cursor.
// Local rate-limit rejections and remote failures both advance the cursor.
func (m *Multiplexer) FetchQuote(ctx context.Context, symbol string) (StockQuote, error) {
	n := uint64(len(m.sites))
	if n == 0 {
		return StockQuote{}, &AllSourcesExhaustedError{Symbol: symbol}
	}

	for i := uint64(0); i < n; i++ {
		slot := (m.index.Add(1) - 1) % n
		site := m.sites[slot]

		quote, err := site.GetStockQuote(ctx, symbol)
		if err != nil {
			m.log.Debug().
				Err(err).
				Str("source", site.Name()).
				Str("symbol", symbol).
				Msg("source failed, advancing")
			continue
		}
		return quote, nil
	}

	return StockQuote{}, &AllSourcesExhaustedError{Symbol: symbol}
}

// FetchPrice tries each source once for a bare price.
func (m *Multiplexer) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	n := uint64(len(m.sites))
	if n == 0 {
		return decimal.Zero, &AllSourcesExhaustedError{Symbol: symbol}
	}

	for i := uint64(0); i < n; i++ {
		slot := (m.index.Add(1) - 1) % n
		site := m.sites[slot]

		price, err := site.GetStockPrice(ctx, symbol)
		if err != nil {
			continue
		}
		return price, nil
	}

	return decimal.Zero, &AllSourcesExhaustedError{Symbol: symbol}
}
