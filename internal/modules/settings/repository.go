// Package settings is the durable key/value store for pipeline bookmarks,
// such as the last processed trading date.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Well-known setting keys.
const (
	KeyLastClosingDate  = "last_closing_date"
	KeyLastRevenueMonth = "last_revenue_month"
)

const dateLayout = "2006-01-02"

// Repository handles the settings table.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewRepository creates a settings repository.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  log.With().Str("repo", "settings").Logger(),
	}
}

// Get returns a setting's value, or "" when the key is absent.
func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := r.pool.QueryRow(ctx,
		`SELECT val FROM settings WHERE key = $1`, key).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return val, nil
}

// Set writes a setting unconditionally.
func (r *Repository) Set(ctx context.Context, key, val string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, val) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET val = EXCLUDED.val`,
		key, val)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetDate returns a date-valued setting. The zero time means unset.
func (r *Repository) GetDate(ctx context.Context, key string) (time.Time, error) {
	val, err := r.Get(ctx, key)
	if err != nil || val == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse setting %s=%q: %w", key, val, err)
	}
	return t, nil
}

// SetDate writes a date-valued setting only if the new date is strictly
// later than the stored one. Bookmarks move forward only; a stale or
// replayed pipeline run cannot rewind them.
func (r *Repository) SetDate(ctx context.Context, key string, date time.Time) error {
	current, err := r.GetDate(ctx, key)
	if err != nil {
		return err
	}
	if !date.After(current) {
		r.log.Debug().
			Str("key", key).
			Time("current", current).
			Time("proposed", date).
			Msg("date setting not advanced")
		return nil
	}
	return r.Set(ctx, key, date.Format(dateLayout))
}
