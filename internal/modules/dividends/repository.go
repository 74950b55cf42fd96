// Package dividends manages dividend distribution rows and the derived
// annual-total rows.
package dividends

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/domain"
)

// Repository handles the dividends table.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates a dividend repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "dividend").Logger(),
	}
}

const dividendColumns = `security_code, year, year_of_dividend, quarter,
cash_dividend, cash_dividend_from_earnings, cash_dividend_from_reserve,
stock_dividend, stock_dividend_from_earnings, stock_dividend_from_reserve,
sum, payout_ratio, payout_ratio_cash, payout_ratio_stock,
ex_dividend_date1, ex_dividend_date2, payable_date1, payable_date2,
created_at, updated_at`

// Upsert inserts or refreshes one dividend row on its
// (security_code, year, quarter) identity.
func (r *Repository) Upsert(ctx context.Context, d *domain.Dividend) error {
	query := `
		INSERT INTO dividends (` + dividendColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, now(), now())
		ON CONFLICT (security_code, year, quarter) DO UPDATE SET
			year_of_dividend = EXCLUDED.year_of_dividend,
			cash_dividend = EXCLUDED.cash_dividend,
			cash_dividend_from_earnings = EXCLUDED.cash_dividend_from_earnings,
			cash_dividend_from_reserve = EXCLUDED.cash_dividend_from_reserve,
			stock_dividend = EXCLUDED.stock_dividend,
			stock_dividend_from_earnings = EXCLUDED.stock_dividend_from_earnings,
			stock_dividend_from_reserve = EXCLUDED.stock_dividend_from_reserve,
			sum = EXCLUDED.sum,
			payout_ratio = EXCLUDED.payout_ratio,
			payout_ratio_cash = EXCLUDED.payout_ratio_cash,
			payout_ratio_stock = EXCLUDED.payout_ratio_stock,
			ex_dividend_date1 = EXCLUDED.ex_dividend_date1,
			ex_dividend_date2 = EXCLUDED.ex_dividend_date2,
			payable_date1 = EXCLUDED.payable_date1,
			payable_date2 = EXCLUDED.payable_date2,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		d.SecurityCode, d.Year, d.YearOfDividend, d.Quarter,
		d.CashDividend, d.CashDividendFromEarnings, d.CashDividendFromReserve,
		d.StockDividend, d.StockDividendFromEarnings, d.StockDividendFromReserve,
		d.Sum, d.PayoutRatio, d.PayoutRatioCash, d.PayoutRatioStock,
		d.ExDividendDate1, d.ExDividendDate2, d.PayableDate1, d.PayableDate2)
	if err != nil {
		return fmt.Errorf("failed to upsert dividend %s %d %q: %w",
			d.SecurityCode, d.Year, d.Quarter, err)
	}
	return nil
}

// ExistingKeys returns the dedup keys of every row whose year_of_dividend is
// one of the given years. The quarterly collector consults this set before
// touching a remote source.
func (r *Repository) ExistingKeys(ctx context.Context, years ...int64) (map[domain.DividendKey]struct{}, error) {
	query := `
		SELECT security_code, year_of_dividend, quarter
		FROM dividends
		WHERE year_of_dividend = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, years)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividend keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.DividendKey]struct{})
	for rows.Next() {
		var k domain.DividendKey
		if err := rows.Scan(&k.SecurityCode, &k.YearOfDividend, &k.Quarter); err != nil {
			return nil, fmt.Errorf("failed to scan dividend key: %w", err)
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// MultiQuarterSymbols returns symbols that declared more than one quarterly
// or semiannual row for the given dividend year. Only those need an
// annual-total aggregate.
func (r *Repository) MultiQuarterSymbols(ctx context.Context, year int64) ([]string, error) {
	query := `
		SELECT security_code
		FROM dividends
		WHERE year_of_dividend = $1 AND quarter <> ''
		GROUP BY security_code
		HAVING count(*) > 1
	`
	rows, err := r.pool.Query(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query multi-quarter symbols: %w", err)
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

// NoAnnualRowSymbols returns the subset of the given symbols that have no
// annual-total row (empty quarter) for the given dividend year yet.
func (r *Repository) NoAnnualRowSymbols(ctx context.Context, year int64, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	query := `
		SELECT s FROM unnest($2::text[]) AS s
		WHERE NOT EXISTS (
			SELECT 1 FROM dividends
			WHERE security_code = s AND year_of_dividend = $1 AND quarter = ''
		)
	`
	rows, err := r.pool.Query(ctx, query, year, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols without annual row: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		missing = append(missing, s)
	}
	return missing, rows.Err()
}

// RefreshAnnualTotal rebuilds one symbol's annual-total row for a dividend
// year by summing its quarterly rows. The date fields of a total row carry
// the no-action marker; they are never looked up.
func (r *Repository) RefreshAnnualTotal(ctx context.Context, symbol string, year int64) error {
	query := `
		INSERT INTO dividends (` + dividendColumns + `)
		SELECT security_code, max(year), year_of_dividend, '',
			sum(cash_dividend), sum(cash_dividend_from_earnings), sum(cash_dividend_from_reserve),
			sum(stock_dividend), sum(stock_dividend_from_earnings), sum(stock_dividend_from_reserve),
			sum(sum), avg(payout_ratio), avg(payout_ratio_cash), avg(payout_ratio_stock),
			$3, $3, $3, $3, now(), now()
		FROM dividends
		WHERE security_code = $1 AND year_of_dividend = $2 AND quarter <> ''
		GROUP BY security_code, year_of_dividend
		ON CONFLICT (security_code, year, quarter) DO UPDATE SET
			cash_dividend = EXCLUDED.cash_dividend,
			cash_dividend_from_earnings = EXCLUDED.cash_dividend_from_earnings,
			cash_dividend_from_reserve = EXCLUDED.cash_dividend_from_reserve,
			stock_dividend = EXCLUDED.stock_dividend,
			stock_dividend_from_earnings = EXCLUDED.stock_dividend_from_earnings,
			stock_dividend_from_reserve = EXCLUDED.stock_dividend_from_reserve,
			sum = EXCLUDED.sum,
			payout_ratio = EXCLUDED.payout_ratio,
			payout_ratio_cash = EXCLUDED.payout_ratio_cash,
			payout_ratio_stock = EXCLUDED.payout_ratio_stock,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, symbol, year, domain.NoAction)
	if err != nil {
		return fmt.Errorf("failed to refresh annual total for %s %d: %w", symbol, year, err)
	}
	return nil
}

// RecomputePayoutRatios refreshes the payout ratio columns of a dividend
// year from the current EPS figures on the stock master.
func (r *Repository) RecomputePayoutRatios(ctx context.Context, year int64) (int64, error) {
	query := `
		UPDATE dividends AS d SET
			payout_ratio = round((d.sum / s.last_four_eps * 100)::numeric, 2),
			payout_ratio_cash = round((d.cash_dividend / s.last_four_eps * 100)::numeric, 2),
			payout_ratio_stock = round((d.stock_dividend / s.last_four_eps * 100)::numeric, 2),
			updated_at = now()
		FROM stocks AS s
		WHERE d.security_code = s.stock_symbol
			AND d.year_of_dividend = $1
			AND s.last_four_eps > 0
	`
	tag, err := r.pool.Exec(ctx, query, year)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute payout ratios for %d: %w", year, err)
	}
	return tag.RowsAffected(), nil
}

// UnannouncedDateRows returns the rows of a dividend year that still carry
// the not-yet-announced sentinel in any date field.
func (r *Repository) UnannouncedDateRows(ctx context.Context, year int64) ([]domain.Dividend, error) {
	query := `
		SELECT ` + dividendColumns + `
		FROM dividends
		WHERE year_of_dividend = $1 AND quarter <> ''
			AND (ex_dividend_date1 = $2 OR ex_dividend_date2 = $2
				OR payable_date1 = $2 OR payable_date2 = $2)
	`
	rows, err := r.pool.Query(ctx, query, year, domain.NotYetAnnounced)
	if err != nil {
		return nil, fmt.Errorf("failed to query unannounced dividend rows: %w", err)
	}
	defer rows.Close()

	var dividends []domain.Dividend
	for rows.Next() {
		var d domain.Dividend
		if err := rows.Scan(
			&d.SecurityCode, &d.Year, &d.YearOfDividend, &d.Quarter,
			&d.CashDividend, &d.CashDividendFromEarnings, &d.CashDividendFromReserve,
			&d.StockDividend, &d.StockDividendFromEarnings, &d.StockDividendFromReserve,
			&d.Sum, &d.PayoutRatio, &d.PayoutRatioCash, &d.PayoutRatioStock,
			&d.ExDividendDate1, &d.ExDividendDate2, &d.PayableDate1, &d.PayableDate2,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// UpdateDates writes the four date fields of one row.
func (r *Repository) UpdateDates(ctx context.Context, d *domain.Dividend) error {
	query := `
		UPDATE dividends
		SET ex_dividend_date1 = $4, ex_dividend_date2 = $5,
			payable_date1 = $6, payable_date2 = $7, updated_at = now()
		WHERE security_code = $1 AND year = $2 AND quarter = $3
	`
	_, err := r.pool.Exec(ctx, query,
		d.SecurityCode, d.Year, d.Quarter,
		d.ExDividendDate1, d.ExDividendDate2, d.PayableDate1, d.PayableDate2)
	if err != nil {
		return fmt.Errorf("failed to update dividend dates %s %d %q: %w",
			d.SecurityCode, d.Year, d.Quarter, err)
	}
	return nil
}

// ExDividendOn returns the rows whose cash or stock ex-dividend date equals
// the given day (formatted yyyy-MM-dd), for the reminder notification.
func (r *Repository) ExDividendOn(ctx context.Context, day string) ([]domain.Dividend, error) {
	query := `
		SELECT ` + dividendColumns + `
		FROM dividends
		WHERE ex_dividend_date1 = $1 OR ex_dividend_date2 = $1
	`
	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query ex-dividend rows: %w", err)
	}
	defer rows.Close()

	var dividends []domain.Dividend
	for rows.Next() {
		var d domain.Dividend
		if err := rows.Scan(
			&d.SecurityCode, &d.Year, &d.YearOfDividend, &d.Quarter,
			&d.CashDividend, &d.CashDividendFromEarnings, &d.CashDividendFromReserve,
			&d.StockDividend, &d.StockDividendFromEarnings, &d.StockDividendFromReserve,
			&d.Sum, &d.PayoutRatio, &d.PayoutRatioCash, &d.PayoutRatioStock,
			&d.ExDividendDate1, &d.ExDividendDate2, &d.PayableDate1, &d.PayableDate2,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// PayableOn returns the rows whose cash or stock payable date equals the
// given day (formatted yyyy-MM-dd), for the reminder notification.
func (r *Repository) PayableOn(ctx context.Context, day string) ([]domain.Dividend, error) {
	query := `
		SELECT ` + dividendColumns + `
		FROM dividends
		WHERE payable_date1 = $1 OR payable_date2 = $1
	`
	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query payable rows: %w", err)
	}
	defer rows.Close()

	var dividends []domain.Dividend
	for rows.Next() {
		var d domain.Dividend
		if err := rows.Scan(
			&d.SecurityCode, &d.Year, &d.YearOfDividend, &d.Quarter,
			&d.CashDividend, &d.CashDividendFromEarnings, &d.CashDividendFromReserve,
			&d.StockDividend, &d.StockDividendFromEarnings, &d.StockDividendFromReserve,
			&d.Sum, &d.PayoutRatio, &d.PayoutRatioCash, &d.PayoutRatioStock,
			&d.ExDividendDate1, &d.ExDividendDate2, &d.PayableDate1, &d.PayableDate2,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// AnnualSums returns per-year dividend sums for one symbol, oldest first,
// annual-total rows only. The valuation pipeline feeds on this.
func (r *Repository) AnnualSums(ctx context.Context, symbol string, sinceYear int64) (map[int64]float64, error) {
	query := `
		SELECT year_of_dividend, sum
		FROM dividends
		WHERE security_code = $1 AND quarter = '' AND year_of_dividend >= $2
	`
	rows, err := r.pool.Query(ctx, query, symbol, sinceYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query annual sums for %s: %w", symbol, err)
	}
	defer rows.Close()

	sums := make(map[int64]float64)
	for rows.Next() {
		var year int64
		var sum float64
		if err := rows.Scan(&year, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan annual sum: %w", err)
		}
		sums[year] = sum
	}
	return sums, rows.Err()
}
