package twse

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/sources"
)

// ISIN page modes per market.
var isinModes = map[domain.Market]string{
	domain.MarketPublic:         "1",
	domain.MarketListed:         "2",
	domain.MarketOverTheCounter: "4",
	domain.MarketEmerging:       "5",
}

// Listings implements sources.ListingsSource from the BIG5-encoded ISIN
// registry page.
func (c *Client) Listings(ctx context.Context, market domain.Market) ([]sources.Listing, error) {
	mode, ok := isinModes[market]
	if !ok {
		return nil, fmt.Errorf("unknown market %d", market)
	}

	url := fmt.Sprintf("%s?strMode=%s", isinURL, mode)
	data, status, err := c.http.GetBig5(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "twse", Reason: err.Error()}
	}

	var listings []sources.Listing

	// One flat table; section headers ("股票", "上市認購(售)權證", …) span
	// the row. Equity rows carry "symbol　name" in the first cell.
	inStockSection := false
	doc.Find("table.h4 tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 1 {
			header := strings.TrimSpace(cells.First().Text())
			inStockSection = header == "股票" || strings.HasPrefix(header, "股票")
			return
		}
		if !inStockSection || cells.Length() < 5 {
			return
		}

		first := strings.TrimSpace(cells.Eq(0).Text())
		symbol, name, ok := splitSymbolName(first)
		if !ok {
			return
		}

		listings = append(listings, sources.Listing{
			Symbol:    symbol,
			Name:      name,
			ISIN:      strings.TrimSpace(cells.Eq(1).Text()),
			IssueDate: strings.TrimSpace(cells.Eq(2).Text()),
			Market:    market,
			Industry:  strings.TrimSpace(cells.Eq(4).Text()),
		})
	})
	if len(listings) == 0 {
		return nil, &sources.ParseError{Source: "twse", Reason: "no listing rows"}
	}
	return listings, nil
}

// splitSymbolName splits the registry's "2330　台積電" cell. The separator
// is a full-width space.
func splitSymbolName(s string) (symbol, name string, ok bool) {
	for _, sep := range []string{"　", "　", " "} {
		if idx := strings.Index(s, sep); idx > 0 {
			symbol = strings.TrimSpace(s[:idx])
			name = strings.TrimSpace(s[idx+len(sep):])
			break
		}
	}
	if symbol == "" || name == "" {
		return "", "", false
	}
	// Equity symbols are 4–6 alphanumerics; anything else is a warrant
	// or bond row that slipped through.
	if len(symbol) < 4 || len(symbol) > 6 {
		return "", "", false
	}
	return symbol, name, true
}
