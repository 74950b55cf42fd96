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

// Holidays implements sources.HolidaySource from the exchange's published
// schedule for the given (western) year.
func (c *Client) Holidays(ctx context.Context, year int) ([]time.Time, error) {
	url := fmt.Sprintf("%s/holidaySchedule/holidaySchedule?date=%d&response=json", rwdURL, year)

	resp, err := httpx.GetJSON[statResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if resp.Stat != statOK {
		return nil, fmt.Errorf("holiday schedule response stat is not ok: %s", resp.Stat)
	}

	var days []time.Time
	for _, row := range resp.Data {
		// 名稱, 日期 (ROC, may list several days), 說明
		if len(row) < 2 {
			continue
		}
		for _, part := range strings.Split(row[1], "、") {
			d, err := parseROCDate(part)
			if err != nil {
				continue
			}
			days = append(days, d)
		}
	}
	return days, nil
}

// QfiiHoldings implements sources.QfiiSource: per-symbol foreign and
// mainland-investor shareholding for one trading day.
func (c *Client) QfiiHoldings(ctx context.Context, date time.Time) ([]domain.QFIIHolding, error) {
	url := fmt.Sprintf("%s/fund/MI_QFIIS?date=%s&selectType=ALLBUT0999&response=json",
		rwdURL, date.Format("20060102"))

	resp, err := httpx.GetJSON[statResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if resp.Stat != statOK {
		return nil, nil
	}

	holdings := make([]domain.QFIIHolding, 0, len(resp.Data))
	for _, row := range resp.Data {
		// 證券代號, 證券名稱, 國際證券辨識號碼, 發行股數, 外資及陸資尚可投資股數,
		// 全體外資及陸資持有股數, 外資及陸資尚可投資比率, 全體外資及陸資持股比率, …
		if len(row) < 8 {
			continue
		}
		holdings = append(holdings, domain.QFIIHolding{
			SecurityCode:   strings.TrimSpace(row[0]),
			Date:           date,
			IssuedShares:   int64(parseNumber(row[3])),
			HoldingShares:  int64(parseNumber(row[5])),
			HoldingPercent: parseNumber(row[7]),
		})
	}
	return holdings, nil
}

// PublicOfferings implements sources.PublicOfferingSource: current
// new-listing subscription windows.
func (c *Client) PublicOfferings(ctx context.Context) ([]domain.Public, error) {
	year := time.Now().Year() - 1911
	url := fmt.Sprintf("%s/announcement/publicForm?date=%d&response=json", rwdURL, year)

	resp, err := httpx.GetJSON[statResponse](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	if resp.Stat != statOK {
		return nil, nil
	}

	var offerings []domain.Public
	for _, row := range resp.Data {
		// 抽籤日期, 證券名稱, 證券代號, 發行市場, 申購開始日, 申購結束日,
		// 承銷股數, 實際承銷價(元), 撥券日期(上市、上櫃日期), …
		if len(row) < 9 {
			continue
		}
		symbol := strings.TrimSpace(row[2])
		if symbol == "" {
			continue
		}

		p := domain.Public{
			StockSymbol:   symbol,
			Name:          strings.TrimSpace(row[1]),
			Market:        marketFromName(row[3]),
			OfferingPrice: parseNumber(row[7]),
		}
		if d, err := parseROCDate(row[0]); err == nil {
			p.DrawingDate = d
		}
		if d, err := parseROCDate(row[4]); err == nil {
			p.SubscriptionBegin = d
		}
		if d, err := parseROCDate(row[5]); err == nil {
			p.SubscriptionEnd = d
		}
		if d, err := parseROCDate(row[8]); err == nil {
			p.IssueDate = d
		}
		offerings = append(offerings, p)
	}
	return offerings, nil
}

// SuspendedListings implements sources.SuspendListingSource from the open
// data endpoint.
func (c *Client) SuspendedListings(ctx context.Context) ([]string, error) {
	type suspendRow struct {
		DelistingDate string `json:"DelistingDate"`
		Company       string `json:"Company"`
		Code          string `json:"Code"`
	}

	url := openURL + "/company/suspendListingCsvAndHtml"
	rows, err := httpx.GetJSON[[]suspendRow](ctx, c.http, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}

	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		if code := strings.TrimSpace(row.Code); code != "" {
			symbols = append(symbols, code)
		}
	}
	return symbols, nil
}

func marketFromName(name string) domain.Market {
	switch {
	case strings.Contains(name, "上市"):
		return domain.MarketListed
	case strings.Contains(name, "上櫃"):
		return domain.MarketOverTheCounter
	case strings.Contains(name, "興櫃"):
		return domain.MarketEmerging
	default:
		return domain.MarketPublic
	}
}
