package quotes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// IndexRepository handles the market-index table.
type IndexRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewIndexRepository creates an index repository.
func NewIndexRepository(pool *pgxpool.Pool, log zerolog.Logger) *IndexRepository {
	return &IndexRepository{
		pool: pool,
		log:  log.With().Str("repo", "index").Logger(),
	}
}

// Upsert inserts or refreshes one index reading.
func (r *IndexRepository) Upsert(ctx context.Context, idx *domain.Index) error {
	query := `
		INSERT INTO indices (category, date, trade_value, trading_volume, transaction_count,
			change_value, index_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (category, date) DO UPDATE SET
			trade_value = EXCLUDED.trade_value,
			trading_volume = EXCLUDED.trading_volume,
			transaction_count = EXCLUDED.transaction_count,
			change_value = EXCLUDED.change_value,
			index_value = EXCLUDED.index_value
	`
	_, err := r.pool.Exec(ctx, query,
		idx.Category, idx.Date, idx.TradeValue, idx.TradingVolume,
		idx.Transactions, idx.Change, idx.Index)
	if err != nil {
		return fmt.Errorf("failed to upsert index %s: %w", idx.Category, err)
	}
	return nil
}

// Recent returns readings from the last n calendar days, for warming the
// reference cache.
func (r *IndexRepository) Recent(ctx context.Context, days int) ([]domain.Index, error) {
	query := `
		SELECT category, date, trade_value, trading_volume, transaction_count,
			change_value, index_value
		FROM indices
		WHERE date > now() - ($1 || ' days')::interval
		ORDER BY date
	`
	rows, err := r.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent indices: %w", err)
	}
	defer rows.Close()

	var indices []domain.Index
	for rows.Next() {
		var idx domain.Index
		if err := rows.Scan(
			&idx.Category, &idx.Date, &idx.TradeValue, &idx.TradingVolume,
			&idx.Transactions, &idx.Change, &idx.Index,
		); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}
