// Package publicoffering manages new-listing subscription windows.
package publicoffering

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// Repository handles the publics table.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates a public-offering repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "public_offering").Logger(),
	}
}

// Upsert writes one subscription window. Returns true when the row was
// newly created, which is what gates the one-shot notification.
func (r *Repository) Upsert(ctx context.Context, p *domain.Public) (bool, error) {
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO publics (stock_symbol, name, market_id, subscription_begin,
			subscription_end, drawing_date, issue_date, offering_price, actual_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stock_symbol) DO UPDATE SET
			subscription_begin = EXCLUDED.subscription_begin,
			subscription_end = EXCLUDED.subscription_end,
			drawing_date = EXCLUDED.drawing_date,
			issue_date = EXCLUDED.issue_date,
			offering_price = EXCLUDED.offering_price,
			actual_price = EXCLUDED.actual_price
		RETURNING (xmax = 0)`,
		p.StockSymbol, p.Name, int(p.Market), p.SubscriptionBegin,
		p.SubscriptionEnd, p.DrawingDate, p.IssueDate,
		p.OfferingPrice, p.ActualPrice).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert public offering %s: %w", p.StockSymbol, err)
	}
	return created, nil
}

// OpenWindows returns the windows whose subscription period covers the
// given day.
func (r *Repository) OpenWindows(ctx context.Context, day time.Time) ([]domain.Public, error) {
	query := `
		SELECT stock_symbol, name, market_id, subscription_begin, subscription_end,
			drawing_date, issue_date, offering_price, actual_price
		FROM publics
		WHERE subscription_begin <= $1 AND subscription_end >= $1
		ORDER BY subscription_end
	`
	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query open subscription windows: %w", err)
	}
	defer rows.Close()

	var publics []domain.Public
	for rows.Next() {
		var p domain.Public
		var market int
		if err := rows.Scan(
			&p.StockSymbol, &p.Name, &market, &p.SubscriptionBegin, &p.SubscriptionEnd,
			&p.DrawingDate, &p.IssueDate, &p.OfferingPrice, &p.ActualPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan public offering: %w", err)
		}
		p.Market = domain.Market(market)
		publics = append(publics, p)
	}
	return publics, rows.Err()
}
