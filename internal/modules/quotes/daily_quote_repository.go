// Package quotes manages the daily quote tables: per-day quotes, the
// last-trading-day materialization, market indices and the rolling
// extreme records.
package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// DailyQuoteRepository handles the daily_quotes table.
type DailyQuoteRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewDailyQuoteRepository creates a daily quote repository.
func NewDailyQuoteRepository(pool *pgxpool.Pool, log zerolog.Logger) *DailyQuoteRepository {
	return &DailyQuoteRepository{
		pool: pool,
		log:  log.With().Str("repo", "daily_quote").Logger(),
	}
}

const dailyQuoteColumns = `stock_symbol, date, opening_price, highest_price, lowest_price,
closing_price, trading_volume, trade_value, transaction_count, change_value, change_range,
best_bid_price, best_bid_volume, best_ask_price, best_ask_volume, price_earning_rate,
moving_average_5, moving_average_10, moving_average_20, moving_average_60,
moving_average_120, moving_average_240, maximum_price_in_year, minimum_price_in_year,
average_price_in_year, maximum_price_in_year_date_on, minimum_price_in_year_date_on,
price_to_book_ratio, record_time`

// Upsert inserts or refreshes one day's quote for one symbol.
func (r *DailyQuoteRepository) Upsert(ctx context.Context, q *domain.DailyQuote) error {
	query := `
		INSERT INTO daily_quotes (` + dailyQuoteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		ON CONFLICT (stock_symbol, date) DO UPDATE SET
			opening_price = EXCLUDED.opening_price,
			highest_price = EXCLUDED.highest_price,
			lowest_price = EXCLUDED.lowest_price,
			closing_price = EXCLUDED.closing_price,
			trading_volume = EXCLUDED.trading_volume,
			trade_value = EXCLUDED.trade_value,
			transaction_count = EXCLUDED.transaction_count,
			change_value = EXCLUDED.change_value,
			change_range = EXCLUDED.change_range,
			best_bid_price = EXCLUDED.best_bid_price,
			best_bid_volume = EXCLUDED.best_bid_volume,
			best_ask_price = EXCLUDED.best_ask_price,
			best_ask_volume = EXCLUDED.best_ask_volume,
			price_earning_rate = EXCLUDED.price_earning_rate,
			record_time = EXCLUDED.record_time
	`
	_, err := r.pool.Exec(ctx, query, quoteArgs(q)...)
	if err != nil {
		return fmt.Errorf("failed to upsert daily quote %s %s: %w",
			q.Symbol, q.Date.Format("2006-01-02"), err)
	}
	return nil
}

func quoteArgs(q *domain.DailyQuote) []any {
	return []any{
		q.Symbol, q.Date, q.OpeningPrice, q.HighestPrice, q.LowestPrice,
		q.ClosingPrice, q.TradingVolume, q.TradeValue, q.Transactions,
		q.ChangeValue, q.ChangeRange,
		q.BestBidPrice, q.BestBidVolume, q.BestAskPrice, q.BestAskVolume,
		q.PriceEarningRate,
		q.MovingAverage5, q.MovingAverage10, q.MovingAverage20,
		q.MovingAverage60, q.MovingAverage120, q.MovingAverage240,
		q.MaximumPriceInYear, q.MinimumPriceInYear, q.AveragePriceInYear,
		q.MaximumPriceInYearDateOn, q.MinimumPriceInYearDateOn,
		q.PriceToBookRatio, q.RecordTime,
	}
}

// PriceHistory is the lookback row the moving-average step consumes.
type PriceHistory struct {
	HighestPrice float64
	LowestPrice  float64
	ClosingPrice float64
	Date         time.Time
}

// HistoryWindow returns (high, low, close, date) for a symbol over the
// last 400 calendar days, newest first, at most 240 rows — the window the
// moving-average step reads.
func (r *DailyQuoteRepository) HistoryWindow(ctx context.Context, symbol string, until time.Time) ([]PriceHistory, error) {
	query := `
		SELECT highest_price, lowest_price, closing_price, date
		FROM daily_quotes
		WHERE stock_symbol = $1 AND date <= $2 AND date > $3 AND closing_price > 0
		ORDER BY date DESC
		LIMIT 240
	`
	rows, err := r.pool.Query(ctx, query, symbol, until, until.AddDate(0, 0, -400))
	if err != nil {
		return nil, fmt.Errorf("failed to query history window for %s: %w", symbol, err)
	}
	defer rows.Close()

	var history []PriceHistory
	for rows.Next() {
		var h PriceHistory
		if err := rows.Scan(&h.HighestPrice, &h.LowestPrice, &h.ClosingPrice, &h.Date); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ClosingPrices returns a symbol's non-zero closing prices over the last
// `years` calendar years, oldest first. The valuation pipeline feeds its
// percentile bands from this series.
func (r *DailyQuoteRepository) ClosingPrices(ctx context.Context, symbol string, until time.Time, years int) ([]float64, error) {
	query := `
		SELECT closing_price
		FROM daily_quotes
		WHERE stock_symbol = $1 AND date <= $2 AND date > $3 AND closing_price > 0
		ORDER BY date
	`
	rows, err := r.pool.Query(ctx, query, symbol, until, until.AddDate(-years, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to query closing prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan closing price: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// LastBefore returns a symbol's most recent quote strictly before the
// given date, looking back at most 30 days. Used by the gap-fill step.
func (r *DailyQuoteRepository) LastBefore(ctx context.Context, symbol string, date time.Time) (*domain.DailyQuote, error) {
	query := `
		SELECT ` + dailyQuoteColumns + `
		FROM daily_quotes
		WHERE stock_symbol = $1 AND date < $2 AND date >= $3
		ORDER BY date DESC
		LIMIT 1
	`
	row := r.pool.QueryRow(ctx, query, symbol, date, date.AddDate(0, 0, -30))

	var q domain.DailyQuote
	if err := row.Scan(
		&q.Symbol, &q.Date, &q.OpeningPrice, &q.HighestPrice, &q.LowestPrice,
		&q.ClosingPrice, &q.TradingVolume, &q.TradeValue, &q.Transactions,
		&q.ChangeValue, &q.ChangeRange,
		&q.BestBidPrice, &q.BestBidVolume, &q.BestAskPrice, &q.BestAskVolume,
		&q.PriceEarningRate,
		&q.MovingAverage5, &q.MovingAverage10, &q.MovingAverage20,
		&q.MovingAverage60, &q.MovingAverage120, &q.MovingAverage240,
		&q.MaximumPriceInYear, &q.MinimumPriceInYear, &q.AveragePriceInYear,
		&q.MaximumPriceInYearDateOn, &q.MinimumPriceInYearDateOn,
		&q.PriceToBookRatio, &q.RecordTime,
	); err != nil {
		return nil, err
	}
	return &q, nil
}

// SymbolsOn returns the symbols that already have a quote row for a date.
func (r *DailyQuoteRepository) SymbolsOn(ctx context.Context, date time.Time) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT stock_symbol FROM daily_quotes WHERE date = $1`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols on %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	symbols := make(map[string]struct{})
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols[s] = struct{}{}
	}
	return symbols, rows.Err()
}

// BatchUpdateMovingAverage writes the computed analytics columns for all of
// one day's rows in a single round-trip. Per-row updates would serialize
// badly at one row per traded symbol.
func (r *DailyQuoteRepository) BatchUpdateMovingAverage(ctx context.Context, quotes []domain.DailyQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	symbols := make([]string, len(quotes))
	dates := make([]time.Time, len(quotes))
	ma5 := make([]float64, len(quotes))
	ma10 := make([]float64, len(quotes))
	ma20 := make([]float64, len(quotes))
	ma60 := make([]float64, len(quotes))
	ma120 := make([]float64, len(quotes))
	ma240 := make([]float64, len(quotes))
	maxYear := make([]float64, len(quotes))
	minYear := make([]float64, len(quotes))
	avgYear := make([]float64, len(quotes))
	maxDate := make([]time.Time, len(quotes))
	minDate := make([]time.Time, len(quotes))
	pbr := make([]float64, len(quotes))

	for i, q := range quotes {
		symbols[i] = q.Symbol
		dates[i] = q.Date
		ma5[i] = q.MovingAverage5
		ma10[i] = q.MovingAverage10
		ma20[i] = q.MovingAverage20
		ma60[i] = q.MovingAverage60
		ma120[i] = q.MovingAverage120
		ma240[i] = q.MovingAverage240
		maxYear[i] = q.MaximumPriceInYear
		minYear[i] = q.MinimumPriceInYear
		avgYear[i] = q.AveragePriceInYear
		maxDate[i] = q.MaximumPriceInYearDateOn
		minDate[i] = q.MinimumPriceInYearDateOn
		pbr[i] = q.PriceToBookRatio
	}

	query := `
		UPDATE daily_quotes AS d SET
			moving_average_5 = v.ma5,
			moving_average_10 = v.ma10,
			moving_average_20 = v.ma20,
			moving_average_60 = v.ma60,
			moving_average_120 = v.ma120,
			moving_average_240 = v.ma240,
			maximum_price_in_year = v.max_year,
			minimum_price_in_year = v.min_year,
			average_price_in_year = v.avg_year,
			maximum_price_in_year_date_on = v.max_date,
			minimum_price_in_year_date_on = v.min_date,
			price_to_book_ratio = v.pbr
		FROM (
			SELECT * FROM unnest(
				$1::text[], $2::date[], $3::float8[], $4::float8[], $5::float8[],
				$6::float8[], $7::float8[], $8::float8[], $9::float8[], $10::float8[],
				$11::float8[], $12::date[], $13::date[], $14::float8[]
			) AS t(symbol, date, ma5, ma10, ma20, ma60, ma120, ma240,
				max_year, min_year, avg_year, max_date, min_date, pbr)
		) AS v
		WHERE d.stock_symbol = v.symbol AND d.date = v.date
	`
	_, err := r.pool.Exec(ctx, query,
		symbols, dates, ma5, ma10, ma20, ma60, ma120, ma240,
		maxYear, minYear, avgYear, maxDate, minDate, pbr)
	if err != nil {
		return fmt.Errorf("failed to batch update moving averages: %w", err)
	}
	return nil
}
