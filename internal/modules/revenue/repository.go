// Package revenue manages monthly revenue report rows.
package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// Repository handles the revenues table.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates a revenue repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "revenue").Logger(),
	}
}

// Upsert inserts or refreshes one monthly revenue row.
func (r *Repository) Upsert(ctx context.Context, rev *domain.Revenue) error {
	query := `
		INSERT INTO revenues (security_code, date, monthly, last_month, last_year_this_month,
			month_over_month, year_over_year, cumulative_total, cumulative_last_year,
			cumulative_change, avg_price, closing_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (security_code, date) DO UPDATE SET
			monthly = EXCLUDED.monthly,
			last_month = EXCLUDED.last_month,
			last_year_this_month = EXCLUDED.last_year_this_month,
			month_over_month = EXCLUDED.month_over_month,
			year_over_year = EXCLUDED.year_over_year,
			cumulative_total = EXCLUDED.cumulative_total,
			cumulative_last_year = EXCLUDED.cumulative_last_year,
			cumulative_change = EXCLUDED.cumulative_change
	`
	_, err := r.pool.Exec(ctx, query,
		rev.SecurityCode, rev.Date, rev.Monthly, rev.LastMonth, rev.LastYearThisMonth,
		rev.MonthOverMonth, rev.YearOverYear, rev.CumulativeTotal, rev.CumulativeLastYear,
		rev.CumulativeChange, rev.AvgPrice, rev.ClosingPrice)
	if err != nil {
		return fmt.Errorf("failed to upsert revenue %s %d: %w", rev.SecurityCode, rev.Date, err)
	}
	return nil
}

// ByMonth returns every row for one yyyyMM month.
func (r *Repository) ByMonth(ctx context.Context, yyyymm int64) ([]domain.Revenue, error) {
	query := `
		SELECT security_code, date, monthly, last_month, last_year_this_month,
			month_over_month, year_over_year, cumulative_total, cumulative_last_year,
			cumulative_change, avg_price, closing_price
		FROM revenues
		WHERE date = $1
	`
	rows, err := r.pool.Query(ctx, query, yyyymm)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenues for %d: %w", yyyymm, err)
	}
	defer rows.Close()

	var revenues []domain.Revenue
	for rows.Next() {
		var rev domain.Revenue
		if err := rows.Scan(
			&rev.SecurityCode, &rev.Date, &rev.Monthly, &rev.LastMonth, &rev.LastYearThisMonth,
			&rev.MonthOverMonth, &rev.YearOverYear, &rev.CumulativeTotal, &rev.CumulativeLastYear,
			&rev.CumulativeChange, &rev.AvgPrice, &rev.ClosingPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan revenue: %w", err)
		}
		revenues = append(revenues, rev)
	}
	return revenues, rows.Err()
}

// RefreshPriceStats joins one month's revenue rows with the quote stream:
// each row gets the month's average close and its last close. Returns the
// number of rows touched.
func (r *Repository) RefreshPriceStats(ctx context.Context, yyyymm int64, monthStart, nextMonth time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE revenues AS r SET
			avg_price = s.avg_price,
			closing_price = s.closing_price
		FROM (
			SELECT stock_symbol,
				round(avg(closing_price)::numeric, 2)::float8 AS avg_price,
				(array_agg(closing_price ORDER BY date DESC))[1] AS closing_price
			FROM daily_quotes
			WHERE date >= $2 AND date < $3 AND closing_price > 0
			GROUP BY stock_symbol
		) AS s
		WHERE r.security_code = s.stock_symbol AND r.date = $1`,
		yyyymm, monthStart, nextMonth)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh revenue price stats %d: %w", yyyymm, err)
	}
	return tag.RowsAffected(), nil
}
