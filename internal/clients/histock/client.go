// Package histock is a scrape-based live-quote fallback source.
package histock

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const quoteURL = "https://histock.tw/stock/%s"

// Client is the HiStock adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a HiStock client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "histock").Logger(),
	}
}

// Name implements sources.QuoteSource.
func (c *Client) Name() string { return "histock" }

// GetStockQuote implements sources.QuoteSource.
func (c *Client) GetStockQuote(ctx context.Context, symbol string) (sources.StockQuote, error) {
	url := fmt.Sprintf(quoteURL, symbol)

	data, status, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return sources.StockQuote{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status == 429 {
		return sources.StockQuote{}, sources.ErrRateLimited
	}
	if status != 200 {
		return sources.StockQuote{}, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: err.Error()}
	}

	priceText := strings.TrimSpace(doc.Find("span#Price1_lbTPrice span").First().Text())
	changeText := strings.TrimSpace(doc.Find("span#Price1_lbTChange span").First().Text())
	percentText := strings.TrimSpace(doc.Find("span#Price1_lbTPercent span").First().Text())

	price, err := decimal.NewFromString(strings.ReplaceAll(priceText, ",", ""))
	if err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: "price cell unreadable"}
	}

	change, err := parseCell(strings.Trim(strings.ReplaceAll(changeText, ",", ""), "▲▼"))
	if err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: "change cell unreadable"}
	}
	percent, err := parseCell(strings.TrimSuffix(strings.Trim(percentText, "()"), "%"))
	if err != nil {
		return sources.StockQuote{}, &sources.ParseError{Source: c.Name(), Reason: "percent cell unreadable"}
	}
	if strings.Contains(changeText, "▼") {
		change = change.Neg()
		percent = percent.Neg()
	}

	return sources.StockQuote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: percent,
	}, nil
}

// parseCell reads one numeric cell. Empty and "--" cells mean flat and
// parse as zero.
func parseCell(s string) (decimal.Decimal, error) {
	if s == "" || s == "--" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// GetStockPrice implements sources.QuoteSource.
func (c *Client) GetStockPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := c.GetStockQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}
