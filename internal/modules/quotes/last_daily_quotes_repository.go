package quotes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/database"
	"github.com/aristath/twstock/internal/domain"
)

// LastDailyQuotesRepository handles the last_daily_quotes materialization:
// one row per symbol, always the latest trading day.
type LastDailyQuotesRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewLastDailyQuotesRepository creates a last-daily-quotes repository.
func NewLastDailyQuotesRepository(pool *pgxpool.Pool, log zerolog.Logger) *LastDailyQuotesRepository {
	return &LastDailyQuotesRepository{
		pool: pool,
		log:  log.With().Str("repo", "last_daily_quotes").Logger(),
	}
}

// Rebuild truncates the table and reinserts the day's rows in one
// transaction, so readers see either the old day or the new day, never a
// half-built one.
func (r *LastDailyQuotesRepository) Rebuild(ctx context.Context, quotes []domain.LastDailyQuote) error {
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE last_daily_quotes`); err != nil {
			return fmt.Errorf("failed to truncate last_daily_quotes: %w", err)
		}

		rows := make([][]any, len(quotes))
		for i := range quotes {
			rows[i] = quoteArgs(&quotes[i].DailyQuote)
		}
		cols := []string{
			"stock_symbol", "date", "opening_price", "highest_price", "lowest_price",
			"closing_price", "trading_volume", "trade_value", "transaction_count",
			"change_value", "change_range",
			"best_bid_price", "best_bid_volume", "best_ask_price", "best_ask_volume",
			"price_earning_rate",
			"moving_average_5", "moving_average_10", "moving_average_20",
			"moving_average_60", "moving_average_120", "moving_average_240",
			"maximum_price_in_year", "minimum_price_in_year", "average_price_in_year",
			"maximum_price_in_year_date_on", "minimum_price_in_year_date_on",
			"price_to_book_ratio", "record_time",
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"last_daily_quotes"}, cols, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to copy last_daily_quotes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info().Int("rows", len(quotes)).Msg("last_daily_quotes rebuilt")
	return nil
}

// All returns every row, for warming the reference cache.
func (r *LastDailyQuotesRepository) All(ctx context.Context) ([]domain.LastDailyQuote, error) {
	query := `SELECT ` + dailyQuoteColumns + ` FROM last_daily_quotes`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query last_daily_quotes: %w", err)
	}
	defer rows.Close()

	var quotes []domain.LastDailyQuote
	for rows.Next() {
		var q domain.DailyQuote
		if err := rows.Scan(
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
			return nil, fmt.Errorf("failed to scan last daily quote: %w", err)
		}
		quotes = append(quotes, domain.LastDailyQuote{DailyQuote: q})
	}
	return quotes, rows.Err()
}
