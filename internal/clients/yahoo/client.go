// Package yahoo is the Yahoo Finance adapter: live quotes from the chart
// API and dividend histories from the Taiwan site's dividend page.
package yahoo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const (
	chartURL    = "https://query1.finance.yahoo.com/v8/finance/chart"
	dividendURL = "https://tw.stock.yahoo.com/quote/%s/dividend"
)

// Client is the Yahoo adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a Yahoo client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "yahoo").Logger(),
	}
}

// Name implements sources.QuoteSource and sources.DividendSource.
func (c *Client) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	} `json:"chart"`
}

// GetStockQuote implements sources.QuoteSource. Listed symbols resolve
// under .TW; OTC symbols answer under .TWO, tried second.
func (c *Client) GetStockQuote(ctx context.Context, symbol string) (sources.StockQuote, error) {
	var lastErr error
	for _, suffix := range []string{".TW", ".TWO"} {
		quote, err := c.fetchChart(ctx, symbol, suffix)
		if err == nil {
			return quote, nil
		}
		lastErr = err
	}
	return sources.StockQuote{}, lastErr
}

// GetStockPrice implements sources.QuoteSource.
func (c *Client) GetStockPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := c.GetStockQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

func (c *Client) fetchChart(ctx context.Context, symbol, suffix string) (sources.StockQuote, error) {
	url := fmt.Sprintf("%s/%s%s?range=1d&interval=1d", chartURL, symbol, suffix)

	data, status, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return sources.StockQuote{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status == http.StatusTooManyRequests {
		return sources.StockQuote{}, sources.ErrRateLimited
	}
	if status != http.StatusOK {
		return sources.StockQuote{}, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	resp, err := parseChart(data)
	if err != nil {
		return sources.StockQuote{}, err
	}

	meta := resp.Chart.Result[0].Meta
	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	change := decimal.NewFromFloat(meta.RegularMarketPrice - meta.PreviousClose)
	percent := decimal.Zero
	if meta.PreviousClose != 0 {
		percent = change.Div(decimal.NewFromFloat(meta.PreviousClose)).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return sources.StockQuote{
		Symbol:        symbol,
		Price:         price,
		Change:        change.Round(2),
		ChangePercent: percent,
	}, nil
}
