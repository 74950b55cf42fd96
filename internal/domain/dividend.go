package domain

import "time"

// NotYetAnnounced is the literal string the sources publish for a dividend
// date that has not been announced. Dates stay stringly-typed because of it.
const NotYetAnnounced = "尚未公布"

// NoAction marks the date fields of an annual-total row whose sum is zero.
const NoAction = "-"

// Quarter values for dividend rows. Empty means the annual total.
const (
	QuarterAnnual = ""
	QuarterQ1     = "Q1"
	QuarterQ2     = "Q2"
	QuarterQ3     = "Q3"
	QuarterQ4     = "Q4"
	QuarterH1     = "H1"
	QuarterH2     = "H2"
)

// Dividend is one dividend distribution row, keyed by
// (security_code, year, quarter). Year is the issuance year;
// YearOfDividend is the year the dividend pertains to; they often differ.
type Dividend struct {
	SecurityCode   string
	Year           int64
	YearOfDividend int64
	Quarter        string

	// Cash dividend, split by funding source.
	CashDividend             float64 // Sum of the two below
	CashDividendFromEarnings float64
	CashDividendFromReserve  float64

	// Stock dividend, split likewise.
	StockDividend             float64
	StockDividendFromEarnings float64
	StockDividendFromReserve  float64

	Sum float64 // Cash + stock grand total

	PayoutRatio      float64
	PayoutRatioCash  float64
	PayoutRatioStock float64

	// Stringly-typed: the sources publish 尚未公布 when unknown.
	ExDividendDate1 string // Cash ex-dividend date
	ExDividendDate2 string // Stock ex-dividend date
	PayableDate1    string // Cash payable date
	PayableDate2    string // Stock payable date

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key identifies a dividend row for dedup purposes.
func (d *Dividend) Key() DividendKey {
	return DividendKey{
		SecurityCode:   d.SecurityCode,
		YearOfDividend: d.YearOfDividend,
		Quarter:        d.Quarter,
	}
}

// DividendKey is the dedup key for a dividend row.
type DividendKey struct {
	SecurityCode   string
	YearOfDividend int64
	Quarter        string
}

// HasUnannouncedDate reports whether any of the four date fields still
// carries the not-yet-announced sentinel.
func (d *Dividend) HasUnannouncedDate() bool {
	return d.ExDividendDate1 == NotYetAnnounced ||
		d.ExDividendDate2 == NotYetAnnounced ||
		d.PayableDate1 == NotYetAnnounced ||
		d.PayableDate2 == NotYetAnnounced
}

// StockOwnershipDetail is one private-portfolio lot.
type StockOwnershipDetail struct {
	Serial          int64
	SecurityCode    string
	MemberID        int64
	ShareQuantity   int64
	HoldingCost     float64
	TransactionDate time.Time
	Sold            bool
}

// DividendRecordDetail is one year's dividend accrual for one lot.
type DividendRecordDetail struct {
	Serial                int64
	StockOwnershipSerial  int64
	SecurityCode          string
	Year                  int64
	CashDividend          float64
	StockDividendShares   float64
	Total                 float64
}

// DividendRecordDetailMore carries per-source-dividend-row attribution for
// one accrual, kept for audit.
type DividendRecordDetailMore struct {
	Serial               int64
	RecordDetailSerial   int64
	DividendSerialKey    DividendKey
	CashDividend         float64
	StockDividendShares  float64
	Total                float64
}

// DailyMoneyHistory is one member's portfolio market-value total for one day.
type DailyMoneyHistory struct {
	Date        time.Time
	MemberID    int64
	Sum         float64
	HoldingCost float64
	Profit      float64
	ProfitRatio float64
}

// DailyMoneyHistoryDetail is one member's per-symbol breakdown for one day.
type DailyMoneyHistoryDetail struct {
	Date          time.Time
	MemberID      int64
	SecurityCode  string
	ClosingPrice  float64
	ShareQuantity int64
	MarketValue   float64
	HoldingCost   float64
	Profit        float64
	ProfitRatio   float64
}

// DailyMoneyHistoryDetailMore is the per-transaction-lot breakdown.
type DailyMoneyHistoryDetailMore struct {
	Date                 time.Time
	MemberID             int64
	StockOwnershipSerial int64
	SecurityCode         string
	ClosingPrice         float64
	ShareQuantity        int64
	MarketValue          float64
	HoldingCost          float64
	Profit               float64
}

// DailyStockPriceStats is the market-wide valuation and moving-average
// statistics row for one day.
type DailyStockPriceStats struct {
	Date time.Time

	// Counts of listed, non-suspended symbols by estimate band.
	CheaperCount   int
	FairCount      int
	ExpensiveCount int

	// Counts of symbols above / below their own moving averages.
	AboveMA5Count   int
	BelowMA5Count   int
	AboveMA20Count  int
	BelowMA20Count  int
	AboveMA60Count  int
	BelowMA60Count  int
	AboveMA240Count int
	BelowMA240Count int
}
