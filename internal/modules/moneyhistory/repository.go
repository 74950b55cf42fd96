// Package moneyhistory manages the private-portfolio tables: ownership
// lots, per-lot dividend accruals, and the daily market-value family.
package moneyhistory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/database"
	"github.com/aristath/twstock/internal/domain"
)

// Repository handles the portfolio and money-history tables.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates a money-history repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "money_history").Logger(),
	}
}

// ActiveLots returns every unsold portfolio lot.
func (r *Repository) ActiveLots(ctx context.Context) ([]domain.StockOwnershipDetail, error) {
	query := `
		SELECT serial, security_code, member_id, share_quantity, holding_cost,
			transaction_date, sold
		FROM stock_ownership_details
		WHERE sold = false
		ORDER BY serial
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.StockOwnershipDetail
	for rows.Next() {
		var lot domain.StockOwnershipDetail
		if err := rows.Scan(
			&lot.Serial, &lot.SecurityCode, &lot.MemberID,
			&lot.ShareQuantity, &lot.HoldingCost, &lot.TransactionDate, &lot.Sold,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ownership lot: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// UpsertDividendRecord writes one year's dividend accrual for one lot and
// its per-source attribution rows, atomically.
func (r *Repository) UpsertDividendRecord(ctx context.Context, rec *domain.DividendRecordDetail, mores []domain.DividendRecordDetailMore) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var serial int64
		err := tx.QueryRow(ctx, `
			INSERT INTO dividend_record_details (stock_ownership_serial, security_code, year,
				cash_dividend, stock_dividend_shares, total)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (stock_ownership_serial, year) DO UPDATE SET
				cash_dividend = EXCLUDED.cash_dividend,
				stock_dividend_shares = EXCLUDED.stock_dividend_shares,
				total = EXCLUDED.total
			RETURNING serial`,
			rec.StockOwnershipSerial, rec.SecurityCode, rec.Year,
			rec.CashDividend, rec.StockDividendShares, rec.Total).Scan(&serial)
		if err != nil {
			return fmt.Errorf("failed to upsert dividend record for lot %d: %w",
				rec.StockOwnershipSerial, err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM dividend_record_detail_mores WHERE record_detail_serial = $1`,
			serial); err != nil {
			return fmt.Errorf("failed to clear dividend record attribution: %w", err)
		}
		for _, more := range mores {
			if _, err := tx.Exec(ctx, `
				INSERT INTO dividend_record_detail_mores (record_detail_serial,
					security_code, year_of_dividend, quarter,
					cash_dividend, stock_dividend_shares, total)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				serial, more.DividendSerialKey.SecurityCode,
				more.DividendSerialKey.YearOfDividend, more.DividendSerialKey.Quarter,
				more.CashDividend, more.StockDividendShares, more.Total); err != nil {
				return fmt.Errorf("failed to insert dividend record attribution: %w", err)
			}
		}
		return nil
	})
}

// DayRebuild is the full input of one day's money-history rebuild.
type DayRebuild struct {
	Totals  []domain.DailyMoneyHistory
	Details []domain.DailyMoneyHistoryDetail
	Mores   []domain.DailyMoneyHistoryDetailMore
	Stats   *domain.DailyStockPriceStats
}

// RebuildDay replaces the four money-history tables for one date inside a
// single transaction: totals, then detail, then detail-more, then the
// market statistics. Any failure leaves all four untouched.
func (r *Repository) RebuildDay(ctx context.Context, date time.Time, day DayRebuild) error {
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM daily_money_histories WHERE date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear money-history totals: %w", err)
		}
		totals := make([][]any, len(day.Totals))
		for i, t := range day.Totals {
			totals[i] = []any{t.Date, t.MemberID, t.Sum, t.HoldingCost, t.Profit, t.ProfitRatio}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_money_histories"},
			[]string{"date", "member_id", "sum", "holding_cost", "profit", "profit_ratio"},
			pgx.CopyFromRows(totals)); err != nil {
			return fmt.Errorf("failed to insert money-history totals: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM daily_money_history_details WHERE date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear money-history details: %w", err)
		}
		details := make([][]any, len(day.Details))
		for i, d := range day.Details {
			details[i] = []any{d.Date, d.MemberID, d.SecurityCode, d.ClosingPrice,
				d.ShareQuantity, d.MarketValue, d.HoldingCost, d.Profit, d.ProfitRatio}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_money_history_details"},
			[]string{"date", "member_id", "security_code", "closing_price",
				"share_quantity", "market_value", "holding_cost", "profit", "profit_ratio"},
			pgx.CopyFromRows(details)); err != nil {
			return fmt.Errorf("failed to insert money-history details: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM daily_money_history_detail_mores WHERE date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear money-history lot details: %w", err)
		}
		mores := make([][]any, len(day.Mores))
		for i, m := range day.Mores {
			mores[i] = []any{m.Date, m.MemberID, m.StockOwnershipSerial, m.SecurityCode,
				m.ClosingPrice, m.ShareQuantity, m.MarketValue, m.HoldingCost, m.Profit}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_money_history_detail_mores"},
			[]string{"date", "member_id", "stock_ownership_serial", "security_code",
				"closing_price", "share_quantity", "market_value", "holding_cost", "profit"},
			pgx.CopyFromRows(mores)); err != nil {
			return fmt.Errorf("failed to insert money-history lot details: %w", err)
		}

		if day.Stats != nil {
			s := day.Stats
			if _, err := tx.Exec(ctx, `
				INSERT INTO daily_stock_price_stats (date, cheaper_count, fair_count,
					expensive_count, above_ma5, below_ma5, above_ma20, below_ma20,
					above_ma60, below_ma60, above_ma240, below_ma240)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (date) DO UPDATE SET
					cheaper_count = EXCLUDED.cheaper_count,
					fair_count = EXCLUDED.fair_count,
					expensive_count = EXCLUDED.expensive_count,
					above_ma5 = EXCLUDED.above_ma5,
					below_ma5 = EXCLUDED.below_ma5,
					above_ma20 = EXCLUDED.above_ma20,
					below_ma20 = EXCLUDED.below_ma20,
					above_ma60 = EXCLUDED.above_ma60,
					below_ma60 = EXCLUDED.below_ma60,
					above_ma240 = EXCLUDED.above_ma240,
					below_ma240 = EXCLUDED.below_ma240`,
				s.Date, s.CheaperCount, s.FairCount, s.ExpensiveCount,
				s.AboveMA5Count, s.BelowMA5Count, s.AboveMA20Count, s.BelowMA20Count,
				s.AboveMA60Count, s.BelowMA60Count, s.AboveMA240Count, s.BelowMA240Count); err != nil {
				return fmt.Errorf("failed to upsert daily stats: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info().
		Time("date", date).
		Int("members", len(day.Totals)).
		Int("lots", len(day.Mores)).
		Msg("money history rebuilt")
	return nil
}

// TotalsOn returns the per-member totals for one date, newest rebuild.
func (r *Repository) TotalsOn(ctx context.Context, date time.Time) ([]domain.DailyMoneyHistory, error) {
	query := `
		SELECT date, member_id, sum, holding_cost, profit, profit_ratio
		FROM daily_money_histories
		WHERE date = $1
		ORDER BY member_id
	`
	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query money-history totals: %w", err)
	}
	defer rows.Close()

	var totals []domain.DailyMoneyHistory
	for rows.Next() {
		var t domain.DailyMoneyHistory
		if err := rows.Scan(&t.Date, &t.MemberID, &t.Sum, &t.HoldingCost,
			&t.Profit, &t.ProfitRatio); err != nil {
			return nil, fmt.Errorf("failed to scan money-history total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// PreviousTotalsBefore returns the most recent per-member totals strictly
// before the given date, for the day-over-day delta message.
func (r *Repository) PreviousTotalsBefore(ctx context.Context, date time.Time) ([]domain.DailyMoneyHistory, error) {
	query := `
		SELECT date, member_id, sum, holding_cost, profit, profit_ratio
		FROM daily_money_histories
		WHERE date = (SELECT max(date) FROM daily_money_histories WHERE date < $1)
		ORDER BY member_id
	`
	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous money-history totals: %w", err)
	}
	defer rows.Close()

	var totals []domain.DailyMoneyHistory
	for rows.Next() {
		var t domain.DailyMoneyHistory
		if err := rows.Scan(&t.Date, &t.MemberID, &t.Sum, &t.HoldingCost,
			&t.Profit, &t.ProfitRatio); err != nil {
			return nil, fmt.Errorf("failed to scan money-history total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
