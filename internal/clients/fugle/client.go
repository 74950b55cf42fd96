// Package fugle is the Fugle market-data adapter: a REST quote source
// behind a local sliding-window rate limit, plus an optional realtime
// websocket feed.
package fugle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const (
	baseURL = "https://api.fugle.tw/marketdata/v1.0/stock"

	// The remote budget is 60 requests per minute; the local limiter
	// trips first so we never burn the remote quota.
	rateLimit  = 60
	rateWindow = 60 * time.Second

	// Cooldown applied when the remote answers 429 anyway.
	remoteCooldown = 60 * time.Second
)

// Client is the Fugle REST adapter.
type Client struct {
	http    *httpx.Client
	apiKey  string
	limiter *windowLimiter
	log     zerolog.Logger
}

// New creates a Fugle client.
func New(http *httpx.Client, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		http:    http,
		apiKey:  apiKey,
		limiter: newWindowLimiter(rateLimit, rateWindow),
		log:     log.With().Str("client", "fugle").Logger(),
	}
}

// Name implements sources.QuoteSource.
func (c *Client) Name() string { return "fugle" }

// quoteResponse is the intraday quote payload subset we read.
type quoteResponse struct {
	Symbol        string      `json:"symbol"`
	LastPrice     json.Number `json:"lastPrice"`
	ClosePrice    json.Number `json:"closePrice"`
	Change        json.Number `json:"change"`
	ChangePercent json.Number `json:"changePercent"`
}

// GetStockQuote implements sources.QuoteSource. A local limiter rejection
// or a remote 429 is fail-fast; the multiplexer advances to the next
// source.
func (c *Client) GetStockQuote(ctx context.Context, symbol string) (sources.StockQuote, error) {
	if err := c.limiter.acquire(); err != nil {
		return sources.StockQuote{}, err
	}

	url := fmt.Sprintf("%s/intraday/quote/%s", baseURL, symbol)
	headers := map[string]string{"X-API-KEY": c.apiKey}

	data, status, err := c.http.Get(ctx, url, headers)
	if err != nil {
		return sources.StockQuote{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status == http.StatusTooManyRequests {
		c.limiter.cooldown(remoteCooldown)
		return sources.StockQuote{}, sources.ErrRateLimited
	}
	if status != http.StatusOK {
		return sources.StockQuote{}, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	var resp quoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: err.Error()}
	}

	price, err := parseNumber(resp.LastPrice, resp.ClosePrice)
	if err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: "missing price"}
	}
	change, _ := decimalFrom(resp.Change)
	percent, _ := decimalFrom(resp.ChangePercent)

	return sources.StockQuote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: percent,
	}, nil
}

// GetStockPrice implements sources.QuoteSource.
func (c *Client) GetStockPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := c.GetStockQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

// parseNumber takes the first non-empty number of the candidates.
func parseNumber(candidates ...json.Number) (decimal.Decimal, error) {
	for _, n := range candidates {
		if d, err := decimalFrom(n); err == nil && !d.IsZero() {
			return d, nil
		}
	}
	return decimal.Zero, errors.New("no usable number")
}

func decimalFrom(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, errors.New("empty")
	}
	return decimal.NewFromString(n.String())
}
