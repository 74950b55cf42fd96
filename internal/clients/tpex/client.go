// Package tpex is the Taipei Exchange adapter: over-the-counter end-of-day
// quotes and emerging-board net asset values.
package tpex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const baseURL = "https://www.tpex.org.tw/web"

// Client is the TPEx adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a TPEx client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "tpex").Logger(),
	}
}

type aaDataResponse struct {
	AAData     [][]string `json:"aaData"`
	TotalCount int        `json:"iTotalRecords"`
}

// rocDate renders the query-string date the exchange expects (113/08/24).
func rocDate(date time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d", date.Year()-1911, date.Month(), date.Day())
}

// FetchClosing implements sources.DailyQuoteSource for the OTC board.
// An off-day answers with zero rows.
func (c *Client) FetchClosing(ctx context.Context, date time.Time) ([]domain.DailyQuote, error) {
	url := fmt.Sprintf(
		"%s/stock/aftertrading/daily_close_quotes/stk_quote_result.php?l=zh-tw&o=json&d=%s",
		baseURL, rocDate(date))

	resp, err := httpx.GetJSON[aaDataResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}

	quotes := make([]domain.DailyQuote, 0, len(resp.AAData))
	for _, row := range resp.AAData {
		// 代號, 名稱, 收盤, 漲跌, 開盤, 最高, 最低, 均價, 成交股數,
		// 成交金額, 成交筆數, 最後買價, 最後買量, 最後賣價, 最後賣量, 發行股數, …
		if len(row) < 15 {
			continue
		}
		symbol := strings.TrimSpace(row[0])
		// The OTC dump mixes in warrants and ETNs; equities are 4–6 chars.
		if len(symbol) < 4 || len(symbol) > 6 {
			continue
		}

		closing := parseNumber(row[2])
		change := parseNumber(row[3])
		var changeRange float64
		if prior := closing - change; prior > 0 {
			changeRange = change / prior * 100
		}

		quotes = append(quotes, domain.DailyQuote{
			Symbol:        symbol,
			Date:          date,
			ClosingPrice:  closing,
			ChangeValue:   change,
			ChangeRange:   changeRange,
			OpeningPrice:  parseNumber(row[4]),
			HighestPrice:  parseNumber(row[5]),
			LowestPrice:   parseNumber(row[6]),
			TradingVolume: parseNumber(row[8]),
			TradeValue:    parseNumber(row[9]),
			Transactions:  parseNumber(row[10]),
			BestBidPrice:  parseNumber(row[11]),
			BestBidVolume: parseNumber(row[12]),
			BestAskPrice:  parseNumber(row[13]),
			BestAskVolume: parseNumber(row[14]),
			RecordTime:    time.Now(),
		})
	}
	return quotes, nil
}

// NetAssetValues implements sources.NavSource for the emerging board.
func (c *Client) NetAssetValues(ctx context.Context) ([]sources.NavEntry, error) {
	url := fmt.Sprintf(
		"%s/regular_emerging/corporateInfo/emerging/emerging_stock_net_worth.php?l=zh-tw&o=json",
		baseURL)

	resp, err := httpx.GetJSON[aaDataResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}

	entries := make([]sources.NavEntry, 0, len(resp.AAData))
	for _, row := range resp.AAData {
		// 代號, 名稱, …, 每股淨值
		if len(row) < 3 {
			continue
		}
		nav := parseNumber(row[len(row)-1])
		if nav <= 0 {
			continue
		}
		entries = append(entries, sources.NavEntry{
			SecurityCode:          strings.TrimSpace(row[0]),
			NetAssetValuePerShare: nav,
		})
	}
	return entries, nil
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || strings.Trim(s, "-") == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
