// Package universe manages the stock master table. Rows are created by the
// listings backfill and mutated by the NAV / EPS / weights / delisting
// jobs; they are never deleted.
package universe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/database"
	"github.com/aristath/twstock/internal/domain"
)

// StockRepository handles stock master database operations.
type StockRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewStockRepository creates a stock repository.
func NewStockRepository(pool *pgxpool.Pool, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		pool: pool,
		log:  log.With().Str("repo", "stock").Logger(),
	}
}

const stockColumns = `stock_symbol, name, suspend_listing, market_id, industry_id,
net_asset_value_per_share, last_four_eps, last_one_eps, return_on_equity, weight,
issued_share, foreign_holding_shares, foreign_holding_percent, created_at, updated_at`

// Upsert inserts or refreshes one master row. The identity columns and the
// analytics columns owned by other jobs are left alone on conflict.
func (r *StockRepository) Upsert(ctx context.Context, s *domain.Stock) error {
	query := `
		INSERT INTO stocks (` + stockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (stock_symbol) DO UPDATE SET
			name = EXCLUDED.name,
			suspend_listing = EXCLUDED.suspend_listing,
			market_id = EXCLUDED.market_id,
			industry_id = EXCLUDED.industry_id,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		s.Symbol, s.Name, s.SuspendListing, int(s.Market), s.Industry,
		s.NetAssetValuePerShare, s.LastFourQuartersEPS, s.LastQuarterEPS,
		s.ReturnOnEquity, s.Weight, s.IssuedShares,
		s.ForeignHoldingShares, s.ForeignHoldingPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", s.Symbol, err)
	}
	return nil
}

// All returns every master row.
func (r *StockRepository) All(ctx context.Context) ([]domain.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		var s domain.Stock
		var market int
		if err := rows.Scan(
			&s.Symbol, &s.Name, &s.SuspendListing, &market, &s.Industry,
			&s.NetAssetValuePerShare, &s.LastFourQuartersEPS, &s.LastQuarterEPS,
			&s.ReturnOnEquity, &s.Weight, &s.IssuedShares,
			&s.ForeignHoldingShares, &s.ForeignHoldingPercent,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		s.Market = domain.Market(market)
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// ZeroNavSymbols returns listed, non-suspended symbols whose NAV is still
// unset, for the zero-NAV rescan.
func (r *StockRepository) ZeroNavSymbols(ctx context.Context) ([]string, error) {
	query := `
		SELECT stock_symbol FROM stocks
		WHERE net_asset_value_per_share = 0 AND suspend_listing = false
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query zero-nav symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// UpdateNav sets one symbol's net asset value per share.
func (r *StockRepository) UpdateNav(ctx context.Context, symbol string, nav float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE stocks SET net_asset_value_per_share = $2, updated_at = now() WHERE stock_symbol = $1`,
		symbol, nav)
	if err != nil {
		return fmt.Errorf("failed to update nav for %s: %w", symbol, err)
	}
	return nil
}

// UpdateQuarterEps sets one symbol's latest-quarter EPS and rolls the
// four-quarter aggregate.
func (r *StockRepository) UpdateQuarterEps(ctx context.Context, symbol string, lastQuarter, lastFour float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE stocks SET last_one_eps = $2, last_four_eps = $3, updated_at = now() WHERE stock_symbol = $1`,
		symbol, lastQuarter, lastFour)
	if err != nil {
		return fmt.Errorf("failed to update eps for %s: %w", symbol, err)
	}
	return nil
}

// UpdateAnnualProfit sets one symbol's full-year EPS and return on equity.
func (r *StockRepository) UpdateAnnualProfit(ctx context.Context, symbol string, eps, roe float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE stocks SET last_four_eps = $2, return_on_equity = $3, updated_at = now() WHERE stock_symbol = $1`,
		symbol, eps, roe)
	if err != nil {
		return fmt.Errorf("failed to update annual profit for %s: %w", symbol, err)
	}
	return nil
}

// ReplaceWeights zeroes all index weights and sets the given constituents.
// Runs in one transaction so readers never observe a half-replaced set.
func (r *StockRepository) ReplaceWeights(ctx context.Context, weights map[string]float64) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE stocks SET weight = 0 WHERE weight <> 0`); err != nil {
			return fmt.Errorf("failed to zero weights: %w", err)
		}
		for symbol, w := range weights {
			if _, err := tx.Exec(ctx,
				`UPDATE stocks SET weight = $2, updated_at = now() WHERE stock_symbol = $1`,
				symbol, w); err != nil {
				return fmt.Errorf("failed to set weight for %s: %w", symbol, err)
			}
		}
		return nil
	})
}

// UpdateForeignHolding sets one symbol's issued-share count and foreign
// holding figures from the QFII report.
func (r *StockRepository) UpdateForeignHolding(ctx context.Context, h domain.QFIIHolding) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE stocks
		SET issued_share = $2, foreign_holding_shares = $3,
		    foreign_holding_percent = $4, updated_at = now()
		WHERE stock_symbol = $1`,
		h.SecurityCode, h.IssuedShares, h.HoldingShares, h.HoldingPercent)
	if err != nil {
		return fmt.Errorf("failed to update foreign holding for %s: %w", h.SecurityCode, err)
	}
	return nil
}

// MarkSuspended flags the given symbols as suspended. Master rows are
// never deleted; the flag blocks them from analytics.
func (r *StockRepository) MarkSuspended(ctx context.Context, symbols []string) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE stocks SET suspend_listing = true, updated_at = now()
		WHERE stock_symbol = ANY($1) AND suspend_listing = false`,
		symbols)
	if err != nil {
		return 0, fmt.Errorf("failed to mark suspended: %w", err)
	}
	return tag.RowsAffected(), nil
}
