// Package estimates manages the valuation bands and the daily dividend
// yield ranking.
package estimates

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

// Repository handles the estimates and yield_ranks tables.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates an estimate repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "estimate").Logger(),
	}
}

const estimateColumns = `date, security_code, cheap, fair, expensive,
price_cheap, price_fair, price_expensive,
dividend_cheap, dividend_fair, dividend_expensive,
eps_cheap, eps_fair, eps_expensive,
pbr_cheap, pbr_fair, pbr_expensive,
per_cheap, per_fair, per_expensive,
rounds_years, update_time`

// Upsert writes one symbol's valuation bands for one day.
func (r *Repository) Upsert(ctx context.Context, e *domain.Estimate) error {
	query := `
		INSERT INTO estimates (` + estimateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, now())
		ON CONFLICT (date, security_code) DO UPDATE SET
			cheap = EXCLUDED.cheap,
			fair = EXCLUDED.fair,
			expensive = EXCLUDED.expensive,
			price_cheap = EXCLUDED.price_cheap,
			price_fair = EXCLUDED.price_fair,
			price_expensive = EXCLUDED.price_expensive,
			dividend_cheap = EXCLUDED.dividend_cheap,
			dividend_fair = EXCLUDED.dividend_fair,
			dividend_expensive = EXCLUDED.dividend_expensive,
			eps_cheap = EXCLUDED.eps_cheap,
			eps_fair = EXCLUDED.eps_fair,
			eps_expensive = EXCLUDED.eps_expensive,
			pbr_cheap = EXCLUDED.pbr_cheap,
			pbr_fair = EXCLUDED.pbr_fair,
			pbr_expensive = EXCLUDED.pbr_expensive,
			per_cheap = EXCLUDED.per_cheap,
			per_fair = EXCLUDED.per_fair,
			per_expensive = EXCLUDED.per_expensive,
			rounds_years = EXCLUDED.rounds_years,
			update_time = now()
	`
	_, err := r.pool.Exec(ctx, query,
		e.Date, e.SecurityCode, e.Cheap, e.Fair, e.Expensive,
		e.PriceCheap, e.PriceFair, e.PriceExpensive,
		e.DividendCheap, e.DividendFair, e.DividendExpensive,
		e.EPSCheap, e.EPSFair, e.EPSExpensive,
		e.PBRCheap, e.PBRFair, e.PBRExpensive,
		e.PERCheap, e.PERFair, e.PERExpensive,
		e.RoundsYears)
	if err != nil {
		return fmt.Errorf("failed to upsert estimate %s: %w", e.SecurityCode, err)
	}
	return nil
}

// Latest returns a symbol's most recent bands.
func (r *Repository) Latest(ctx context.Context, symbol string) (*domain.Estimate, error) {
	query := `
		SELECT ` + estimateColumns + `
		FROM estimates
		WHERE security_code = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var e domain.Estimate
	err := r.pool.QueryRow(ctx, query, symbol).Scan(
		&e.Date, &e.SecurityCode, &e.Cheap, &e.Fair, &e.Expensive,
		&e.PriceCheap, &e.PriceFair, &e.PriceExpensive,
		&e.DividendCheap, &e.DividendFair, &e.DividendExpensive,
		&e.EPSCheap, &e.EPSFair, &e.EPSExpensive,
		&e.PBRCheap, &e.PBRFair, &e.PBRExpensive,
		&e.PERCheap, &e.PERFair, &e.PERExpensive,
		&e.RoundsYears, &e.UpdateTime)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestAll returns every symbol's most recent bands, for the market-wide
// statistics pass.
func (r *Repository) LatestAll(ctx context.Context) (map[string]domain.Estimate, error) {
	query := `
		SELECT DISTINCT ON (security_code) ` + estimateColumns + `
		FROM estimates
		ORDER BY security_code, date DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest estimates: %w", err)
	}
	defer rows.Close()

	estimates := make(map[string]domain.Estimate)
	for rows.Next() {
		var e domain.Estimate
		if err := rows.Scan(
			&e.Date, &e.SecurityCode, &e.Cheap, &e.Fair, &e.Expensive,
			&e.PriceCheap, &e.PriceFair, &e.PriceExpensive,
			&e.DividendCheap, &e.DividendFair, &e.DividendExpensive,
			&e.EPSCheap, &e.EPSFair, &e.EPSExpensive,
			&e.PBRCheap, &e.PBRFair, &e.PBRExpensive,
			&e.PERCheap, &e.PERFair, &e.PERExpensive,
			&e.RoundsYears, &e.UpdateTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		estimates[e.SecurityCode] = e
	}
	return estimates, rows.Err()
}

// RebuildYieldRanks replaces the day's yield ranking in one transaction.
func (r *Repository) RebuildYieldRanks(ctx context.Context, date time.Time, ranks []domain.YieldRank) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM yield_ranks WHERE date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear yield ranks: %w", err)
		}

		rows := make([][]any, len(ranks))
		for i, rank := range ranks {
			rows[i] = []any{rank.Date, rank.SecurityCode, rank.Yield, rank.Rank}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"yield_ranks"},
			[]string{"date", "security_code", "yield", "rank"},
			pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to copy yield ranks: %w", err)
		}
		return nil
	})
}
