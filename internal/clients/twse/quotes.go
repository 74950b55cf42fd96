package twse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

// FetchClosing implements sources.DailyQuoteSource for the listed board.
// An off-day answers with a non-OK stat; that surfaces as zero rows, not
// an error.
func (c *Client) FetchClosing(ctx context.Context, date time.Time) ([]domain.DailyQuote, error) {
	url := fmt.Sprintf("%s/afterTrading/MI_INDEX?date=%s&type=ALLBUT0999&response=json",
		rwdURL, date.Format("20060102"))

	resp, err := httpx.GetJSON[statResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if resp.Stat != statOK {
		return nil, nil
	}

	table, ok := findTable(resp.Tables, "每日收盤行情")
	if !ok {
		return nil, &sources.ParseError{Source: "twse", Reason: "daily close table missing"}
	}

	quotes := make([]domain.DailyQuote, 0, len(table.Data))
	for _, row := range table.Data {
		// 證券代號, 證券名稱, 成交股數, 成交筆數, 成交金額, 開盤價, 最高價,
		// 最低價, 收盤價, 漲跌(+/-), 漲跌價差, 最後揭示買價, 買量,
		// 最後揭示賣價, 賣量, 本益比
		if len(row) < 16 {
			continue
		}
		symbol := strings.TrimSpace(row[0])
		if symbol == "" {
			continue
		}

		change := parseNumber(row[10])
		if strings.Contains(row[9], "-") && !strings.Contains(row[9], "+") {
			change = -change
		}

		closing := parseNumber(row[8])
		var changeRange float64
		if prior := closing - change; prior > 0 {
			changeRange = round2(change / prior * 100)
		}

		quotes = append(quotes, domain.DailyQuote{
			Symbol:        symbol,
			Date:          date,
			TradingVolume: parseNumber(row[2]),
			Transactions:  parseNumber(row[3]),
			TradeValue:    parseNumber(row[4]),
			OpeningPrice:  parseNumber(row[5]),
			HighestPrice:  parseNumber(row[6]),
			LowestPrice:   parseNumber(row[7]),
			ClosingPrice:  closing,
			ChangeValue:   change,
			ChangeRange:   changeRange,
			BestBidPrice:  parseNumber(row[11]),
			BestBidVolume: parseNumber(row[12]),
			BestAskPrice:  parseNumber(row[13]),
			BestAskVolume: parseNumber(row[14]),
			PriceEarningRate: parseNumber(row[15]),
			RecordTime:    time.Now(),
		})
	}
	return quotes, nil
}

// Indices implements sources.IndexSource: the price-index table of the
// same after-trading report.
func (c *Client) Indices(ctx context.Context, date time.Time) ([]domain.Index, error) {
	url := fmt.Sprintf("%s/afterTrading/MI_INDEX?date=%s&type=IND&response=json",
		rwdURL, date.Format("20060102"))

	resp, err := httpx.GetJSON[statResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if resp.Stat != statOK {
		return nil, nil
	}

	table, ok := findTable(resp.Tables, "價格指數")
	if !ok {
		return nil, &sources.ParseError{Source: "twse", Reason: "price index table missing"}
	}

	indices := make([]domain.Index, 0, len(table.Data))
	for _, row := range table.Data {
		// 指數, 收盤指數, 漲跌(+/-), 漲跌點數, 漲跌百分比(%), 特殊處理註記
		if len(row) < 5 {
			continue
		}
		change := parseNumber(row[3])
		if strings.Contains(row[2], "-") && !strings.Contains(row[2], "+") {
			change = -change
		}
		indices = append(indices, domain.Index{
			Category: strings.TrimSpace(row[0]),
			Date:     date,
			Index:    parseNumber(row[1]),
			Change:   change,
		})
	}
	return indices, nil
}

func findTable(tables []responseTable, keyword string) (responseTable, bool) {
	for _, t := range tables {
		if strings.Contains(t.Title, keyword) {
			return t, true
		}
	}
	return responseTable{}, false
}

func round2(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
