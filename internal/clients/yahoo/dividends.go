package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/sources"
)

func parseChart(data []byte) (*chartResponse, error) {
	var resp chartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &sources.ParseError{Source: "yahoo", Reason: err.Error()}
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", sources.ErrUnavailable, resp.Chart.Error.Code)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, &sources.ParseError{Source: "yahoo", Reason: "empty chart result"}
	}
	return &resp, nil
}

// Dividends implements sources.DividendSource from the dividend page's
// history table.
func (c *Client) Dividends(ctx context.Context, symbol string) ([]sources.DividendDetail, error) {
	url := fmt.Sprintf(dividendURL, symbol)

	data, status, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "yahoo", Reason: err.Error()}
	}

	var details []sources.DividendDetail
	doc.Find("div.table-body-wrapper ul li").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("div > div")
		if cells.Length() < 8 {
			return
		}

		// 股利所屬期間, 現金股利, 股票股利, 除息日, 除權日, 現金股利發放日,
		// 股票股利發放日, 股利合計 …
		period := strings.TrimSpace(cells.Eq(0).Text())
		year, quarter, ok := parsePeriod(period)
		if !ok {
			return
		}

		details = append(details, sources.DividendDetail{
			Year:                     year,
			YearOfDividend:           year,
			Quarter:                  quarter,
			CashDividendFromEarnings: parseNumber(cells.Eq(1).Text()),
			StockDividendFromEarnings: parseNumber(cells.Eq(2).Text()),
			ExDividendDate1:          normalizeDate(cells.Eq(3).Text()),
			ExDividendDate2:          normalizeDate(cells.Eq(4).Text()),
			PayableDate1:             normalizeDate(cells.Eq(5).Text()),
			PayableDate2:             normalizeDate(cells.Eq(6).Text()),
		})
	})

	if len(details) == 0 {
		return nil, &sources.ParseError{Source: "yahoo", Reason: "no dividend rows"}
	}
	return details, nil
}

// parsePeriod reads "2024", "2024Q3" or "2024H1".
func parsePeriod(s string) (int64, string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0, "", false
	}
	year, err := strconv.ParseInt(s[:4], 10, 64)
	if err != nil {
		return 0, "", false
	}
	quarter := strings.ToUpper(strings.TrimSpace(s[4:]))
	switch quarter {
	case domain.QuarterAnnual, domain.QuarterQ1, domain.QuarterQ2,
		domain.QuarterQ3, domain.QuarterQ4, domain.QuarterH1, domain.QuarterH2:
		return year, quarter, true
	default:
		return 0, "", false
	}
}

// normalizeDate keeps the source's stringly dates but maps placeholders to
// the shared not-yet-announced sentinel.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "--":
		return domain.NotYetAnnounced
	}
	return s
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" || s == "--" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
