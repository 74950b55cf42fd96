// Package domain holds the core entities of the collection service.
// Entities are persistence-shaped: the repositories in internal/modules
// read and write these structs directly.
package domain

import "time"

// Stock is the master record for a tradeable instrument.
// Created by the listings backfill, mutated by the listings / NAV / EPS /
// delisting jobs, never deleted.
type Stock struct {
	Symbol                string  // Exchange-assigned, unique
	Name                  string
	SuspendListing        bool // Blocks inclusion in most analytics
	Market                Market
	Industry              int
	NetAssetValuePerShare float64
	LastFourQuartersEPS   float64 // Aggregate EPS over the last four quarters
	LastQuarterEPS        float64
	ReturnOnEquity        float64
	Weight                float64 // Index weight
	IssuedShares          int64
	ForeignHoldingShares  int64
	ForeignHoldingPercent float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsPreferred reports whether the symbol denotes a preferred share
// (five-digit code ending in a letter-mapped digit range). Preferred shares
// carry no EPS-based valuation.
func (s *Stock) IsPreferred() bool {
	return len(s.Symbol) > 4
}

// DailyQuote is one symbol's quote for one trading day.
// Upserted by the closing pipeline; the moving-average fill and
// makeup-for-gaps steps are the only later mutations.
type DailyQuote struct {
	Symbol           string
	Date             time.Time
	OpeningPrice     float64
	HighestPrice     float64
	LowestPrice      float64
	ClosingPrice     float64
	TradingVolume    float64 // Shares
	TradeValue       float64
	Transactions     float64
	ChangeValue      float64
	ChangeRange      float64 // Percent
	BestBidPrice     float64
	BestBidVolume    float64
	BestAskPrice     float64
	BestAskVolume    float64
	PriceEarningRate float64

	MovingAverage5   float64
	MovingAverage10  float64
	MovingAverage20  float64
	MovingAverage60  float64
	MovingAverage120 float64
	MovingAverage240 float64

	MaximumPriceInYear        float64
	MinimumPriceInYear        float64
	AveragePriceInYear        float64
	MaximumPriceInYearDateOn  time.Time
	MinimumPriceInYearDateOn  time.Time
	PriceToBookRatio          float64

	RecordTime time.Time
}

// LastDailyQuote is the materialized most-recent DailyQuote per symbol
// within the last 30 days. The table behind it is rebuilt atomically.
type LastDailyQuote struct {
	DailyQuote
}

// Index is one market index value for one trading day.
type Index struct {
	Category      string
	Date          time.Time
	Index         float64
	Change        float64
	TradeValue    float64
	TradingVolume float64
	Transactions  float64
}

// Key returns the cache key for an index entry.
func (i *Index) Key() string {
	return i.Date.Format("2006-01-02") + "Σ" + i.Category
}

// Revenue is one symbol's monthly revenue report.
type Revenue struct {
	SecurityCode       string
	Date               int64 // yyyyMM
	Monthly            float64
	LastMonth          float64
	LastYearThisMonth  float64
	MonthOverMonth     float64 // Percent
	YearOverYear       float64 // Percent
	CumulativeTotal    float64
	CumulativeLastYear float64
	CumulativeChange   float64 // Percent
	AvgPrice           float64
	ClosingPrice       float64
}

// QuoteHistoryRecord is a symbol's rolling all-time extremes. Updated only
// when a new observation strictly breaks the prior extreme.
type QuoteHistoryRecord struct {
	SecurityCode         string
	MaximumPrice         float64
	MaximumPriceDateOn   time.Time
	MinimumPrice         float64
	MinimumPriceDateOn   time.Time
	MaximumPBR           float64
	MaximumPBRDateOn     time.Time
	MinimumPBR           float64
	MinimumPBRDateOn     time.Time
}

// Estimate carries the valuation bands for one symbol on one day.
// Weighted cheap/fair/expensive prices plus the per-method bands.
type Estimate struct {
	Date         time.Time
	SecurityCode string

	Cheap     float64
	Fair      float64
	Expensive float64

	PriceCheap     float64 // Price-percentile method
	PriceFair      float64
	PriceExpensive float64

	DividendCheap     float64 // Dividend-yield method
	DividendFair      float64
	DividendExpensive float64

	EPSCheap     float64 // EPS × payout method
	EPSFair      float64
	EPSExpensive float64

	PBRCheap     float64 // Price-to-book method
	PBRFair      float64
	PBRExpensive float64

	PERCheap     float64 // Price-to-earnings method
	PERFair      float64
	PERExpensive float64

	RoundsYears int // Years of history that participated
	UpdateTime  time.Time
}

// YieldRank is one symbol's dividend-yield standing for one day.
type YieldRank struct {
	Date         time.Time
	SecurityCode string
	Yield        float64
	Rank         int
}

// Public is a new-listing subscription window. Used once per window to
// notify the user.
type Public struct {
	StockSymbol       string
	Name              string
	Market            Market
	SubscriptionBegin time.Time
	SubscriptionEnd   time.Time
	DrawingDate       time.Time
	IssueDate         time.Time
	OfferingPrice     float64
	ActualPrice       float64
}

// QFIIHolding is the qualified-foreign-institutional-investor position for
// one symbol on one day.
type QFIIHolding struct {
	SecurityCode   string
	Date           time.Time
	IssuedShares   int64
	HoldingShares  int64
	HoldingPercent float64
}
