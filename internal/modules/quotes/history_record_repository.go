package quotes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// QuoteHistoryRepository handles the per-symbol extreme records: highest and
// lowest price / price-to-book seen, with the dates they were set.
type QuoteHistoryRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewQuoteHistoryRepository creates a quote-history repository.
func NewQuoteHistoryRepository(pool *pgxpool.Pool, log zerolog.Logger) *QuoteHistoryRepository {
	return &QuoteHistoryRepository{
		pool: pool,
		log:  log.With().Str("repo", "quote_history").Logger(),
	}
}

// All returns every record, for warming the reference cache.
func (r *QuoteHistoryRepository) All(ctx context.Context) ([]domain.QuoteHistoryRecord, error) {
	query := `
		SELECT stock_symbol, max_price, max_price_date_on, min_price, min_price_date_on,
			max_price_to_book_ratio, max_price_to_book_ratio_date_on,
			min_price_to_book_ratio, min_price_to_book_ratio_date_on
		FROM quote_history_records
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history records: %w", err)
	}
	defer rows.Close()

	var records []domain.QuoteHistoryRecord
	for rows.Next() {
		var rec domain.QuoteHistoryRecord
		if err := rows.Scan(
			&rec.SecurityCode, &rec.MaximumPrice, &rec.MaximumPriceDateOn,
			&rec.MinimumPrice, &rec.MinimumPriceDateOn,
			&rec.MaximumPBR, &rec.MaximumPBRDateOn,
			&rec.MinimumPBR, &rec.MinimumPBRDateOn,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quote history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert writes one symbol's record.
func (r *QuoteHistoryRepository) Upsert(ctx context.Context, rec *domain.QuoteHistoryRecord) error {
	query := `
		INSERT INTO quote_history_records (stock_symbol, max_price, max_price_date_on,
			min_price, min_price_date_on,
			max_price_to_book_ratio, max_price_to_book_ratio_date_on,
			min_price_to_book_ratio, min_price_to_book_ratio_date_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stock_symbol) DO UPDATE SET
			max_price = EXCLUDED.max_price,
			max_price_date_on = EXCLUDED.max_price_date_on,
			min_price = EXCLUDED.min_price,
			min_price_date_on = EXCLUDED.min_price_date_on,
			max_price_to_book_ratio = EXCLUDED.max_price_to_book_ratio,
			max_price_to_book_ratio_date_on = EXCLUDED.max_price_to_book_ratio_date_on,
			min_price_to_book_ratio = EXCLUDED.min_price_to_book_ratio,
			min_price_to_book_ratio_date_on = EXCLUDED.min_price_to_book_ratio_date_on
	`
	_, err := r.pool.Exec(ctx, query,
		rec.SecurityCode, rec.MaximumPrice, rec.MaximumPriceDateOn,
		rec.MinimumPrice, rec.MinimumPriceDateOn,
		rec.MaximumPBR, rec.MaximumPBRDateOn,
		rec.MinimumPBR, rec.MinimumPBRDateOn)
	if err != nil {
		return fmt.Errorf("failed to upsert quote history record %s: %w", rec.SecurityCode, err)
	}
	return nil
}
