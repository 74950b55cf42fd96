package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource records every attempt and either fails or returns a fixed price.
type fakeSource struct {
	name  string
	err   error
	price decimal.Decimal
	calls []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) GetStockPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.price, nil
}

func (f *fakeSource) GetStockQuote(_ context.Context, symbol string) (StockQuote, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return StockQuote{}, f.err
	}
	return StockQuote{Symbol: symbol, Price: f.price}, nil
}

func TestFetchQuoteFailover(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("down")}
	b := &fakeSource{name: "b", err: errors.New("down")}
	c := &fakeSource{name: "c", price: decimal.NewFromFloat(42.5)}
	m := NewMultiplexer(zerolog.Nop(), a, b, c)

	quote, err := m.FetchQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromFloat(42.5)))
	assert.Len(t, a.calls, 1)
	assert.Len(t, b.calls, 1)
	assert.Len(t, c.calls, 1)

	// The cursor advanced three slots, so the second call starts at b.
	quote, err = m.FetchQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromFloat(42.5)))
	assert.Len(t, b.calls, 2)
	assert.Len(t, a.calls, 2)
	assert.Len(t, c.calls, 2)
}

func TestFetchQuoteRoundRobin(t *testing.T) {
	a := &fakeSource{name: "a", price: decimal.NewFromInt(1)}
	b := &fakeSource{name: "b", price: decimal.NewFromInt(2)}
	c := &fakeSource{name: "c", price: decimal.NewFromInt(3)}
	m := NewMultiplexer(zerolog.Nop(), a, b, c)

	var got []int64
	for i := 0; i < 6; i++ {
		quote, err := m.FetchQuote(context.Background(), "2330")
		require.NoError(t, err)
		got = append(got, quote.Price.IntPart())
	}
	assert.Equal(t, []int64{1, 2, 3, 1, 2, 3}, got)
	assert.Len(t, a.calls, 2)
	assert.Len(t, b.calls, 2)
	assert.Len(t, c.calls, 2)
}

func TestFetchQuoteAllExhausted(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("down")}
	m := NewMultiplexer(zerolog.Nop(), a)

	_, err := m.FetchQuote(context.Background(), "2330")
	var exhausted *AllSourcesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "2330", exhausted.Symbol)
}

func TestFetchQuoteNoSources(t *testing.T) {
	m := NewMultiplexer(zerolog.Nop())
	_, err := m.FetchQuote(context.Background(), "2330")
	var exhausted *AllSourcesExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestFetchQuoteAdvancesOnLocalRateLimit(t *testing.T) {
	limited := &fakeSource{name: "limited", err: &LocallyRateLimitedError{RetryAfter: 15 * time.Second}}
	healthy := &fakeSource{name: "healthy", price: decimal.NewFromInt(7)}
	m := NewMultiplexer(zerolog.Nop(), limited, healthy)

	quote, err := m.FetchQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, int64(7), quote.Price.IntPart())
	assert.Len(t, limited.calls, 1)
}

func TestFetchPrice(t *testing.T) {
	a := &fakeSource{name: "a", err: errors.New("down")}
	b := &fakeSource{name: "b", price: decimal.NewFromFloat(99.5)}
	m := NewMultiplexer(zerolog.Nop(), a, b)

	price, err := m.FetchPrice(context.Background(), "2317")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(99.5)))
}
