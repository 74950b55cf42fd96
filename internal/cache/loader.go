package cache

import (
	"context"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/quotes"
	"github.com/aristath/twstock/internal/modules/revenue"
	"github.com/aristath/twstock/internal/modules/universe"
)

// RepositoryLoader feeds the reference cache from the database at boot.
type RepositoryLoader struct {
	stocks  *universe.StockRepository
	last    *quotes.LastDailyQuotesRepository
	indexes *quotes.IndexRepository
	history *quotes.QuoteHistoryRepository
	revenue *revenue.Repository
}

// NewRepositoryLoader bundles the repositories the warm-up reads from.
func NewRepositoryLoader(
	stocks *universe.StockRepository,
	last *quotes.LastDailyQuotesRepository,
	indexes *quotes.IndexRepository,
	history *quotes.QuoteHistoryRepository,
	rev *revenue.Repository,
) *RepositoryLoader {
	return &RepositoryLoader{
		stocks:  stocks,
		last:    last,
		indexes: indexes,
		history: history,
		revenue: rev,
	}
}

func (l *RepositoryLoader) AllStocks(ctx context.Context) ([]domain.Stock, error) {
	return l.stocks.All(ctx)
}

func (l *RepositoryLoader) AllLastDailyQuotes(ctx context.Context) ([]domain.LastDailyQuote, error) {
	return l.last.All(ctx)
}

func (l *RepositoryLoader) RecentIndices(ctx context.Context, days int) ([]domain.Index, error) {
	return l.indexes.Recent(ctx, days)
}

func (l *RepositoryLoader) AllQuoteHistoryRecords(ctx context.Context) ([]domain.QuoteHistoryRecord, error) {
	return l.history.All(ctx)
}

func (l *RepositoryLoader) RevenuesByMonth(ctx context.Context, yyyymm int64) ([]domain.Revenue, error) {
	return l.revenue.ByMonth(ctx, yyyymm)
}
