// Package mops is the Market Observation Post System adapter: monthly
// revenue reports, quarterly EPS / profitability summaries and financial
// statement figures. The legacy endpoints answer in BIG5.
package mops

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/sources"
)

const (
	revenueURL = "https://mopsov.twse.com.tw/nas/t21/%s/t21sc03_%d_%d_0.html"
	queryURL   = "https://mopsov.twse.com.tw/mops/web/ajax_t163sb04"
)

// Markets the revenue report is split across.
var revenueMarkets = map[domain.Market]string{
	domain.MarketListed:         "sii",
	domain.MarketOverTheCounter: "otc",
}

// Client is the MOPS adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a MOPS client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "mops").Logger(),
	}
}

// Revenues implements sources.RevenueSource: the month's revenue report
// for both boards, merged.
func (c *Client) Revenues(ctx context.Context, year int, month time.Month) ([]domain.Revenue, error) {
	rocYear := year - 1911
	var all []domain.Revenue

	for market, code := range revenueMarkets {
		url := fmt.Sprintf(revenueURL, code, rocYear, int(month))
		data, status, err := c.http.GetBig5(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
		}
		if status == 404 {
			// Report not published yet.
			continue
		}
		if status != 200 {
			return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
		}

		rows, err := parseRevenuePage(data, int64(year*100+int(month)))
		if err != nil {
			return nil, err
		}
		c.log.Debug().
			Stringer("market", market).
			Int("rows", len(rows)).
			Msg("revenue page parsed")
		all = append(all, rows...)
	}
	return all, nil
}

func parseRevenuePage(data []byte, yyyymm int64) ([]domain.Revenue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "mops", Reason: err.Error()}
	}

	var revenues []domain.Revenue
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		// 公司代號, 公司名稱, 當月營收, 上月營收, 去年當月營收, 上月比較增減(%),
		// 去年同月增減(%), 當月累計營收, 去年累計營收, 前期比較增減(%), 備註
		if cells.Length() < 10 {
			return
		}
		code := strings.TrimSpace(cells.Eq(0).Text())
		if len(code) < 4 || code == "合計" {
			return
		}
		if _, err := strconv.Atoi(code[:4]); err != nil {
			return
		}

		revenues = append(revenues, domain.Revenue{
			SecurityCode:       code,
			Date:               yyyymm,
			Monthly:            parseNumber(cells.Eq(2).Text()),
			LastMonth:          parseNumber(cells.Eq(3).Text()),
			LastYearThisMonth:  parseNumber(cells.Eq(4).Text()),
			MonthOverMonth:     parseNumber(cells.Eq(5).Text()),
			YearOverYear:       parseNumber(cells.Eq(6).Text()),
			CumulativeTotal:    parseNumber(cells.Eq(7).Text()),
			CumulativeLastYear: parseNumber(cells.Eq(8).Text()),
			CumulativeChange:   parseNumber(cells.Eq(9).Text()),
		})
	})

	if len(revenues) == 0 {
		return nil, &sources.ParseError{Source: "mops", Reason: "no revenue rows"}
	}
	return revenues, nil
}

// QuarterlyEps implements sources.EpsSource: the comprehensive-income
// summary for one quarter, both boards.
func (c *Client) QuarterlyEps(ctx context.Context, year, quarter int) ([]sources.EpsSummary, error) {
	var all []sources.EpsSummary
	for _, typeK := range []string{"sii", "otc"} {
		form := url.Values{
			"encodeURIComponent": {"1"},
			"step":               {"1"},
			"firstin":            {"1"},
			"off":                {"1"},
			"isQuery":            {"Y"},
			"TYPEK":              {typeK},
			"year":               {strconv.Itoa(year - 1911)},
			"season":             {fmt.Sprintf("%02d", quarter)},
		}

		data, status, err := c.http.PostForm(ctx, queryURL, nil, form)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
		}
		if status != 200 {
			return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
		}

		rows, err := parseEpsPage(data, year, quarter)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func parseEpsPage(data []byte, year, quarter int) ([]sources.EpsSummary, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "mops", Reason: err.Error()}
	}

	var summaries []sources.EpsSummary
	doc.Find("table.hasBorder tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		code := strings.TrimSpace(cells.Eq(0).Text())
		if len(code) < 4 {
			return
		}
		if _, err := strconv.Atoi(code[:4]); err != nil {
			return
		}

		// The EPS column is labelled 基本每股盈餘(元); it is the last cell
		// on every layout variant of this report.
		eps := parseNumber(cells.Eq(cells.Length() - 1).Text())
		summaries = append(summaries, sources.EpsSummary{
			SecurityCode: code,
			Year:         year,
			Quarter:      quarter,
			EPS:          eps,
		})
	})

	if len(summaries) == 0 {
		return nil, &sources.ParseError{Source: "mops", Reason: "no eps rows"}
	}
	return summaries, nil
}

// FinancialStatements implements sources.FinancialStatementSource: the
// balance-sheet summary carrying net asset value per share.
func (c *Client) FinancialStatements(ctx context.Context, year, quarter int) ([]sources.FinancialStatement, error) {
	var all []sources.FinancialStatement
	for _, typeK := range []string{"sii", "otc"} {
		form := url.Values{
			"encodeURIComponent": {"1"},
			"step":               {"1"},
			"firstin":            {"1"},
			"off":                {"1"},
			"isQuery":            {"Y"},
			"TYPEK":              {typeK},
			"year":               {strconv.Itoa(year - 1911)},
			"season":             {fmt.Sprintf("%02d", quarter)},
		}

		data, status, err := c.http.PostForm(ctx,
			"https://mopsov.twse.com.tw/mops/web/ajax_t163sb05", nil, form)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
		}
		if status != 200 {
			return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
		}

		rows, err := parseStatementPage(data, year, quarter)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func parseStatementPage(data []byte, year, quarter int) ([]sources.FinancialStatement, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &sources.ParseError{Source: "mops", Reason: err.Error()}
	}

	var statements []sources.FinancialStatement
	doc.Find("table.hasBorder tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		code := strings.TrimSpace(cells.Eq(0).Text())
		if len(code) < 4 {
			return
		}
		if _, err := strconv.Atoi(code[:4]); err != nil {
			return
		}

		statements = append(statements, sources.FinancialStatement{
			SecurityCode:          code,
			Year:                  year,
			Quarter:               quarter,
			NetAssetValuePerShare: parseNumber(cells.Eq(cells.Length() - 1).Text()),
		})
	})

	if len(statements) == 0 {
		return nil, &sources.ParseError{Source: "mops", Reason: "no statement rows"}
	}
	return statements, nil
}

// AnnualProfits implements sources.AnnualProfitSource: the full-year
// profitability report (EPS, ROE, net margin) per symbol.
func (c *Client) AnnualProfits(ctx context.Context, year int) ([]sources.AnnualProfitEntry, error) {
	var all []sources.AnnualProfitEntry
	for _, typeK := range []string{"sii", "otc"} {
		form := url.Values{
			"encodeURIComponent": {"1"},
			"step":               {"1"},
			"firstin":            {"1"},
			"off":                {"1"},
			"isQuery":            {"Y"},
			"TYPEK":              {typeK},
			"year":               {strconv.Itoa(year - 1911)},
		}

		data, status, err := c.http.PostForm(ctx,
			"https://mopsov.twse.com.tw/mops/web/ajax_t163sb06", nil, form)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
		}
		if status != 200 {
			return nil, fmt.Errorf("%w: status %d", sources.ErrUnavailable, status)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, &sources.ParseError{Source: "mops", Reason: err.Error()}
		}

		doc.Find("table.hasBorder tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			// 公司代號, 公司名稱, …, 稅後純益率, 權益報酬率, 基本每股盈餘
			if cells.Length() < 6 {
				return
			}
			code := strings.TrimSpace(cells.Eq(0).Text())
			if len(code) < 4 {
				return
			}
			if _, err := strconv.Atoi(code[:4]); err != nil {
				return
			}
			n := cells.Length()
			all = append(all, sources.AnnualProfitEntry{
				SecurityCode:    code,
				Year:            year,
				NetProfitMargin: parseNumber(cells.Eq(n - 3).Text()),
				ROE:             parseNumber(cells.Eq(n - 2).Text()),
				EPS:             parseNumber(cells.Eq(n - 1).Text()),
			})
		})
	}

	if len(all) == 0 {
		return nil, &sources.ParseError{Source: "mops", Reason: "no annual profit rows"}
	}
	return all, nil
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.Trim(s, "()")
	if s == "" || s == "-" || s == "--" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
