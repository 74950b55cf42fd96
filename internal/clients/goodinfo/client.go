// Package goodinfo is the GoodInfo adapter, the primary dividend source.
// The site is aggressive about scrapers; callers own the inter-symbol
// throttle and the cross-restart dedup flags.
package goodinfo

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const dividendURL = "https://goodinfo.tw/tw/StockDividendPolicy.asp?STOCK_ID=%s"

// Client is the GoodInfo adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a GoodInfo client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "goodinfo").Logger(),
	}
}

// Name implements sources.DividendSource.
func (c *Client) Name() string { return "goodinfo" }

// Dividends implements sources.DividendSource: the full dividend-policy
// table, all years, grouped rows per distribution.
func (c *Client) Dividends(ctx context.Context, symbol string) ([]sources.DividendDetail, error) {
	url := fmt.Sprintf(dividendURL, symbol)
	headers := map[string]string{
		"Referer": "https://goodinfo.tw/tw/index.asp",
	}

	data, status, err := c.http.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if status == 429 {
		return nil, sources.ErrRateLimited
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: c.Name(), Reason: err.Error()}
	}

	var details []sources.DividendDetail
	doc.Find("#tblDetail tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		// 股利發放年度, 股利所屬期間(年度/季), 現金股利-盈餘, 現金股利-公積,
		// 現金股利-合計, 股票股利-盈餘, 股票股利-公積, 股票股利-合計,
		// 股利合計, …, 現金股利發放率, 股票股利發放率, 股利發放率合計,
		// 除息交易日, 除權交易日, 現金股利發放日, 股票股利發放日
		if cells.Length() < 16 {
			return
		}

		year := parseInt(cells.Eq(0).Text())
		if year == 0 {
			return
		}
		yearOf, quarter, ok := parsePeriod(cells.Eq(1).Text())
		if !ok {
			return
		}

		details = append(details, sources.DividendDetail{
			Year:                      year,
			YearOfDividend:            yearOf,
			Quarter:                   quarter,
			CashDividendFromEarnings:  parseNumber(cells.Eq(2).Text()),
			CashDividendFromReserve:   parseNumber(cells.Eq(3).Text()),
			StockDividendFromEarnings: parseNumber(cells.Eq(5).Text()),
			StockDividendFromReserve:  parseNumber(cells.Eq(6).Text()),
			PayoutRatioCash:           parseNumber(cells.Eq(9).Text()),
			PayoutRatioStock:          parseNumber(cells.Eq(10).Text()),
			PayoutRatio:               parseNumber(cells.Eq(11).Text()),
			ExDividendDate1:           normalizeDate(cells.Eq(12).Text()),
			ExDividendDate2:           normalizeDate(cells.Eq(13).Text()),
			PayableDate1:              normalizeDate(cells.Eq(14).Text()),
			PayableDate2:              normalizeDate(cells.Eq(15).Text()),
		})
	})

	if len(details) == 0 {
		return nil, &sources.ParseError{Source: c.Name(), Reason: "no dividend rows"}
	}
	return details, nil
}

// parsePeriod reads the 所屬期間 cell: "2024", "2024Q3", "2024H2" or a
// bare "24Q3" on older rows.
func parsePeriod(s string) (int64, string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return 0, "", false
	}

	digits := s
	quarter := domain.QuarterAnnual
	for _, q := range []string{domain.QuarterQ1, domain.QuarterQ2, domain.QuarterQ3,
		domain.QuarterQ4, domain.QuarterH1, domain.QuarterH2} {
		if strings.HasSuffix(s, q) {
			quarter = q
			digits = strings.TrimSuffix(s, q)
			break
		}
	}

	year, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, "", false
	}
	if year < 1000 {
		// ROC two/three digit year.
		year += 1911
	}
	return year, quarter, true
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "--":
		return domain.NotYetAnnounced
	}
	return s
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
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
