// Package taifex fetches index constituent weights from the futures
// exchange's published table.
package taifex

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const weightsURL = "https://www.taifex.com.tw/cht/9/futuresQADetail"

// Client is the TAIFEX adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a TAIFEX client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "taifex").Logger(),
	}
}

// Weights implements sources.WeightsSource: symbol → index weight percent.
// The table lays constituents out in two column groups per row.
func (c *Client) Weights(ctx context.Context) (map[string]float64, error) {
	data, status, err := c.http.Get(ctx, weightsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "taifex", Reason: err.Error()}
	}

	weights := make(map[string]float64)
	doc.Find("table.table_c tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		// 排行, 證券代號, 證券名稱, 市值比重 — twice per row.
		for base := 0; base+3 < cells.Length(); base += 4 {
			symbol := strings.TrimSpace(cells.Eq(base + 1).Text())
			if symbol == "" {
				continue
			}
			pct := strings.TrimSuffix(strings.TrimSpace(cells.Eq(base+3).Text()), "%")
			w, err := strconv.ParseFloat(strings.ReplaceAll(pct, ",", ""), 64)
			if err != nil {
				continue
			}
			weights[symbol] = w
		}
	})

	if len(weights) == 0 {
		return nil, &sources.ParseError{Source: "taifex", Reason: "no weight rows"}
	}
	return weights, nil
}
