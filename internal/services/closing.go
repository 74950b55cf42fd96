package services

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/quotes"
	"github.com/aristath/twstock/internal/modules/settings"
	"github.com/aristath/twstock/internal/sources"
)

// maFanout bounds the per-symbol moving-average computation.
const maFanout = 32

// ClosingService runs the end-of-day pipeline. The steps are strictly
// ordered; a failing step aborts the run (per-symbol failures inside a
// step log and continue).
type ClosingService struct {
	exchanges []sources.DailyQuoteSource
	indexes   sources.IndexSource

	daily    *quotes.DailyQuoteRepository
	last     *quotes.LastDailyQuotesRepository
	indexRep *quotes.IndexRepository
	history  *quotes.QuoteHistoryRepository
	settings *settings.Repository

	estimate *EstimateService
	money    *MoneyHistoryService

	reference   *cache.Reference
	ttl         *cache.TTL
	notifier    *Notifier
	memberNames map[int64]string
	log         zerolog.Logger

	now func() time.Time
}

// NewClosingService wires the closing pipeline.
func NewClosingService(
	exchanges []sources.DailyQuoteSource,
	indexes sources.IndexSource,
	daily *quotes.DailyQuoteRepository,
	last *quotes.LastDailyQuotesRepository,
	indexRep *quotes.IndexRepository,
	history *quotes.QuoteHistoryRepository,
	set *settings.Repository,
	estimate *EstimateService,
	money *MoneyHistoryService,
	reference *cache.Reference,
	ttl *cache.TTL,
	notifier *Notifier,
	memberNames map[int64]string,
	log zerolog.Logger,
) *ClosingService {
	return &ClosingService{
		exchanges:   exchanges,
		indexes:     indexes,
		daily:       daily,
		last:        last,
		indexRep:    indexRep,
		history:     history,
		settings:    set,
		estimate:    estimate,
		money:       money,
		reference:   reference,
		ttl:         ttl,
		notifier:    notifier,
		memberNames: memberNames,
		log:         log.With().Str("service", "closing").Logger(),
		now:         time.Now,
	}
}

// Run executes the pipeline for today.
func (s *ClosingService) Run(ctx context.Context) error {
	date := s.now().UTC().Truncate(24 * time.Hour)
	log := s.log.With().Str("run", uuid.NewString()[:8]).Time("date", date).Logger()

	// Step 1: fetch both exchanges, merged.
	var fetched []domain.DailyQuote
	for _, ex := range s.exchanges {
		day, err := ex.FetchClosing(ctx, date)
		if err != nil {
			return err
		}
		fetched = append(fetched, day...)
	}
	if len(fetched) == 0 {
		log.Info().Msg("no quotes fetched, holiday")
		return nil
	}
	log.Info().Int("quotes", len(fetched)).Msg("closing quotes fetched")

	if s.indexes != nil {
		if err := s.persistIndices(ctx, date, log); err != nil {
			log.Error().Err(err).Msg("index persistence failed")
		}
	}

	// Step 2: persist, dedup-guarded.
	fetchedSet := make(map[string]struct{}, len(fetched))
	for i := range fetched {
		q := &fetched[i]
		fetchedSet[q.Symbol] = struct{}{}
		if !s.ttl.MarkDailyQuote(q.Symbol, date) {
			continue
		}
		if err := s.daily.Upsert(ctx, q); err != nil {
			log.Error().Err(err).Str("symbol", q.Symbol).Msg("quote upsert failed")
		}
	}

	// Step 3: gap-fill from the most recent prior row.
	today := fetched
	for symbol, stock := range s.reference.Stocks() {
		if stock.SuspendListing || stock.Market == domain.MarketPublic {
			continue
		}
		if _, ok := fetchedSet[symbol]; ok {
			continue
		}
		prior, err := s.daily.LastBefore(ctx, symbol, date)
		if err != nil {
			continue
		}
		filled := *prior
		filled.Date = date
		filled.ChangeValue = 0
		filled.ChangeRange = 0
		filled.TradingVolume = 0
		filled.TradeValue = 0
		filled.Transactions = 0
		filled.RecordTime = s.now()
		if err := s.daily.Upsert(ctx, &filled); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("gap-fill upsert failed")
			continue
		}
		today = append(today, filled)
	}

	// Step 4: moving averages, bounded fan-out.
	newRecords, err := s.computeAnalytics(ctx, today, date, log)
	if err != nil {
		return err
	}

	// Step 5: one bulk update for all of today's rows.
	if err := s.daily.BatchUpdateMovingAverage(ctx, today); err != nil {
		return err
	}

	// Step 6: history records, mirrored into the cache on each success.
	for i := range newRecords {
		rec := &newRecords[i]
		if err := s.history.Upsert(ctx, rec); err != nil {
			log.Error().Err(err).Str("symbol", rec.SecurityCode).Msg("history record upsert failed")
			continue
		}
		s.reference.SetQuoteHistoryRecord(*rec)
	}

	// Step 7: rebuild the last-trading-day materialization.
	lastQuotes := make([]domain.LastDailyQuote, len(today))
	for i, q := range today {
		lastQuotes[i] = domain.LastDailyQuote{DailyQuote: q}
	}
	if err := s.last.Rebuild(ctx, lastQuotes); err != nil {
		return err
	}
	for _, q := range today {
		s.reference.SetStockLastPrice(q)
	}

	// Steps 8 and 9: valuation bands and yield ranking.
	if err := s.estimate.RecomputeAll(ctx, date); err != nil {
		return err
	}

	// Step 10: money-history family, one transaction.
	if err := s.money.RebuildDay(ctx, date); err != nil {
		return err
	}

	// Step 11.
	s.ttl.ClearDailyQuote()

	// Step 12: day-over-day portfolio message.
	if err := s.sendMoneyDelta(ctx, date); err != nil {
		log.Error().Err(err).Msg("portfolio delta notification failed")
	}

	if err := s.settings.SetDate(ctx, settings.KeyLastClosingDate, date); err != nil {
		log.Error().Err(err).Msg("closing bookmark not advanced")
	}
	log.Info().Int("symbols", len(today)).Int("new_records", len(newRecords)).Msg("closing pipeline done")
	return nil
}

func (s *ClosingService) persistIndices(ctx context.Context, date time.Time, log zerolog.Logger) error {
	indices, err := s.indexes.Indices(ctx, date)
	if err != nil {
		return err
	}
	for i := range indices {
		if err := s.indexRep.Upsert(ctx, &indices[i]); err != nil {
			log.Error().Err(err).Str("category", indices[i].Category).Msg("index upsert failed")
			continue
		}
		s.reference.SetIndex(indices[i])
	}
	return nil
}

// computeAnalytics fills MAs, year extremes, and price-to-book for today's
// rows in place, and returns the history records that strict breakouts
// require.
func (s *ClosingService) computeAnalytics(ctx context.Context, today []domain.DailyQuote, date time.Time, log zerolog.Logger) ([]domain.QuoteHistoryRecord, error) {
	var (
		mu      sync.Mutex
		records []domain.QuoteHistoryRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maFanout)
	for i := range today {
		q := &today[i]
		g.Go(func() error {
			window, err := s.daily.HistoryWindow(gctx, q.Symbol, date)
			if err != nil {
				log.Error().Err(err).Str("symbol", q.Symbol).Msg("history window query failed")
				return nil
			}
			s.fillAnalytics(q, window)

			if rec, ok := s.breakoutRecord(q); ok {
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// fillAnalytics computes MA_k (0 when fewer than k closes exist), the
// year extremes with their dates, the year average, and the price-to-book
// ratio. The window comes in newest first.
func (s *ClosingService) fillAnalytics(q *domain.DailyQuote, window []quotes.PriceHistory) {
	closes := make([]float64, len(window))
	for i, h := range window {
		// talib wants oldest first.
		closes[len(window)-1-i] = h.ClosingPrice
	}

	q.MovingAverage5 = sma(closes, 5)
	q.MovingAverage10 = sma(closes, 10)
	q.MovingAverage20 = sma(closes, 20)
	q.MovingAverage60 = sma(closes, 60)
	q.MovingAverage120 = sma(closes, 120)
	q.MovingAverage240 = sma(closes, 240)

	var sum float64
	for _, h := range window {
		sum += h.ClosingPrice
		if h.HighestPrice > q.MaximumPriceInYear {
			q.MaximumPriceInYear = h.HighestPrice
			q.MaximumPriceInYearDateOn = h.Date
		}
		if q.MinimumPriceInYear == 0 || (h.LowestPrice > 0 && h.LowestPrice < q.MinimumPriceInYear) {
			q.MinimumPriceInYear = h.LowestPrice
			q.MinimumPriceInYearDateOn = h.Date
		}
	}
	if len(window) > 0 {
		q.AveragePriceInYear = round2(sum / float64(len(window)))
	}

	if stock, ok := s.reference.GetStock(q.Symbol); ok &&
		stock.NetAssetValuePerShare > 0 && q.ClosingPrice > 0 {
		q.PriceToBookRatio = q.ClosingPrice / stock.NetAssetValuePerShare
	}
}

// breakoutRecord decides whether today's row strictly breaks the symbol's
// rolling extremes. Comparisons are rounded to 4 decimal places.
func (s *ClosingService) breakoutRecord(q *domain.DailyQuote) (domain.QuoteHistoryRecord, bool) {
	prior, _ := s.reference.GetQuoteHistoryRecord(q.Symbol)

	high := round4(q.HighestPrice)
	low := round4(q.LowestPrice)
	pbr := round4(q.PriceToBookRatio)

	changed := false
	rec := prior
	rec.SecurityCode = q.Symbol

	if high > round4(prior.MaximumPrice) {
		rec.MaximumPrice = high
		rec.MaximumPriceDateOn = q.Date
		changed = true
	}
	if prior.MinimumPrice == 0 || (low > 0 && low < round4(prior.MinimumPrice)) {
		rec.MinimumPrice = low
		rec.MinimumPriceDateOn = q.Date
		changed = true
	}
	if pbr > 0 {
		if pbr > round4(prior.MaximumPBR) {
			rec.MaximumPBR = pbr
			rec.MaximumPBRDateOn = q.Date
			changed = true
		}
		if prior.MinimumPBR == 0 || pbr < round4(prior.MinimumPBR) {
			rec.MinimumPBR = pbr
			rec.MinimumPBRDateOn = q.Date
			changed = true
		}
	}
	return rec, changed
}

func (s *ClosingService) sendMoneyDelta(ctx context.Context, date time.Time) error {
	today, err := s.money.money.TotalsOn(ctx, date)
	if err != nil {
		return err
	}
	if len(today) == 0 {
		return nil
	}
	previous, err := s.money.money.PreviousTotalsBefore(ctx, date)
	if err != nil {
		return err
	}
	s.notifier.Send(formatMoneyDelta(today, previous, s.memberNames))
	return nil
}

// sma returns the k-period simple moving average of the newest closes, or 0
// when fewer than k closes exist.
func sma(closes []float64, k int) float64 {
	if len(closes) < k {
		return 0
	}
	out := talib.Sma(closes, k)
	return round2(out[len(out)-1])
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
