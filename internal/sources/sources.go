// Package sources defines the capabilities a remote site can provide and
// the failover multiplexer over live-quote providers.
//
// Adapters under internal/clients implement one or more of these
// interfaces. They use only the HTTP fabric and never touch the database.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/twstock/internal/domain"
)

// Source error taxonomy. Callers branch on intent, not on type name.
var (
	// ErrUnavailable marks a source that could not be reached.
	ErrUnavailable = errors.New("source unavailable")
	// ErrRateLimited marks a remote 429.
	ErrRateLimited = errors.New("source rate limited")
)

// ParseError marks a response whose shape no longer matches the adapter.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse failed: %s", e.Source, e.Reason)
}

// AllSourcesExhaustedError is returned after one full rotation fails.
type AllSourcesExhaustedError struct {
	Symbol string
}

func (e *AllSourcesExhaustedError) Error() string {
	return fmt.Sprintf("all quote sources exhausted for %s", e.Symbol)
}

// LocallyRateLimitedError is a fail-fast local limiter rejection.
type LocallyRateLimitedError struct {
	RetryAfter time.Duration
}

func (e *LocallyRateLimitedError) Error() string {
	return fmt.Sprintf("locally rate limited, retry after %s", e.RetryAfter)
}

// StockQuote is a live quote snapshot. Prices stay exact on this path;
// they leave the process over RPC without a float round trip.
type StockQuote struct {
	Symbol        string
	Price         decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
}

// QuoteSource provides live quotes for single symbols.
type QuoteSource interface {
	Name() string
	GetStockPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetStockQuote(ctx context.Context, symbol string) (StockQuote, error)
}

// Listing is one row of an exchange listings page.
type Listing struct {
	Symbol    string
	Name      string
	ISIN      string
	Market    domain.Market
	Industry  string
	IssueDate string
}

// ListingsSource provides the instrument master list per market.
type ListingsSource interface {
	Listings(ctx context.Context, market domain.Market) ([]Listing, error)
}

// DailyQuoteSource provides one exchange's end-of-day quotes.
type DailyQuoteSource interface {
	FetchClosing(ctx context.Context, date time.Time) ([]domain.DailyQuote, error)
}

// DividendDetail is one parsed dividend row grouped by year.
type DividendDetail struct {
	Year           int64
	YearOfDividend int64
	Quarter        string

	CashDividendFromEarnings  float64
	CashDividendFromReserve   float64
	StockDividendFromEarnings float64
	StockDividendFromReserve  float64

	PayoutRatio      float64
	PayoutRatioCash  float64
	PayoutRatioStock float64

	ExDividendDate1 string
	ExDividendDate2 string
	PayableDate1    string
	PayableDate2    string
}

// CashDividend returns the cash total.
func (d DividendDetail) CashDividend() float64 {
	return d.CashDividendFromEarnings + d.CashDividendFromReserve
}

// StockDividend returns the stock total.
func (d DividendDetail) StockDividend() float64 {
	return d.StockDividendFromEarnings + d.StockDividendFromReserve
}

// Sum returns the grand total.
func (d DividendDetail) Sum() float64 {
	return d.CashDividend() + d.StockDividend()
}

// DividendSource provides per-symbol dividend histories.
type DividendSource interface {
	Name() string
	Dividends(ctx context.Context, symbol string) ([]DividendDetail, error)
}

// RevenueSource provides monthly revenue reports.
type RevenueSource interface {
	Revenues(ctx context.Context, year int, month time.Month) ([]domain.Revenue, error)
}

// WeightsSource provides index weights per symbol.
type WeightsSource interface {
	Weights(ctx context.Context) (map[string]float64, error)
}

// EpsSummary is one symbol's quarterly EPS report.
type EpsSummary struct {
	SecurityCode string
	Year         int
	Quarter      int
	EPS          float64
	ROE          float64
}

// EpsSource provides quarterly and annual EPS figures.
type EpsSource interface {
	QuarterlyEps(ctx context.Context, year, quarter int) ([]EpsSummary, error)
}

// HolidaySource provides the exchange holiday schedule.
type HolidaySource interface {
	Holidays(ctx context.Context, year int) ([]time.Time, error)
}

// SuspendListingSource provides symbols whose listing was suspended.
type SuspendListingSource interface {
	SuspendedListings(ctx context.Context) ([]string, error)
}

// NavEntry is one symbol's net-asset-value-per-share observation.
type NavEntry struct {
	SecurityCode          string
	NetAssetValuePerShare float64
}

// NavSource provides net asset values for emerging-market symbols.
type NavSource interface {
	NetAssetValues(ctx context.Context) ([]NavEntry, error)
}

// QfiiSource provides qualified-foreign-institutional-investor holdings.
type QfiiSource interface {
	QfiiHoldings(ctx context.Context, date time.Time) ([]domain.QFIIHolding, error)
}

// PublicOfferingSource provides new-listing subscription windows.
type PublicOfferingSource interface {
	PublicOfferings(ctx context.Context) ([]domain.Public, error)
}

// AnnualProfitEntry is one symbol's full-year profitability report.
type AnnualProfitEntry struct {
	SecurityCode    string
	Year            int
	EPS             float64
	ROE             float64
	NetProfitMargin float64
}

// AnnualProfitSource provides annual profit reports.
type AnnualProfitSource interface {
	AnnualProfits(ctx context.Context, year int) ([]AnnualProfitEntry, error)
}

// IndexSource provides market index values for one trading day.
type IndexSource interface {
	Indices(ctx context.Context, date time.Time) ([]domain.Index, error)
}

// FinancialStatement is one symbol's quarterly statement summary.
type FinancialStatement struct {
	SecurityCode          string
	Year                  int
	Quarter               int
	GrossProfit           float64
	OperatingProfit       float64
	PreTaxIncome          float64
	NetIncome             float64
	NetAssetValuePerShare float64
}

// FinancialStatementSource provides quarterly statement summaries.
type FinancialStatementSource interface {
	FinancialStatements(ctx context.Context, year, quarter int) ([]FinancialStatement, error)
}
