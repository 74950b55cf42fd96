package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/kvstore"
	"github.com/aristath/twstock/internal/modules/dividends"
	"github.com/aristath/twstock/internal/sources"
)

// Inter-symbol throttles. The primary source bans aggressive crawlers, so
// its delay is deliberately long.
const (
	primaryThrottle = 120 * time.Second
	yahooThrottle   = 3 * time.Second

	dateFollowUpRetries = 5
	dateFollowUpBase    = 100 * time.Millisecond
)

// DividendService runs the two dividend collection flows in parallel:
// flow A fills missing rows from the primary source, flow B chases
// not-yet-announced dates on Yahoo.
type DividendService struct {
	primary sources.DividendSource
	yahoo   sources.DividendSource

	dividends *dividends.Repository
	flags     *kvstore.Store
	reference *cache.Reference
	log       zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewDividendService wires the dividend pipeline.
func NewDividendService(
	primary, yahoo sources.DividendSource,
	div *dividends.Repository,
	flags *kvstore.Store,
	ref *cache.Reference,
	log zerolog.Logger,
) *DividendService {
	return &DividendService{
		primary:   primary,
		yahoo:     yahoo,
		dividends: div,
		flags:     flags,
		reference: ref,
		log:       log.With().Str("service", "dividend").Logger(),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run executes both flows concurrently and returns the first flow error.
func (s *DividendService) Run(ctx context.Context) error {
	year := int64(s.now().Year())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.collectMissing(gctx, year) })
	g.Go(func() error { return s.followUpDates(gctx, year) })
	return g.Wait()
}

// RecomputePayoutRatios refreshes the payout ratios of the current and
// previous dividend years against the freshest EPS figures.
func (s *DividendService) RecomputePayoutRatios(ctx context.Context) error {
	year := int64(s.now().Year())
	for _, y := range []int64{year, year - 1} {
		n, err := s.dividends.RecomputePayoutRatios(ctx, y)
		if err != nil {
			return err
		}
		s.log.Info().Int64("year", y).Int64("rows", n).Msg("payout ratios recomputed")
	}
	return nil
}

// collectMissing is flow A: symbols with no annual-total row this year,
// plus symbols that already declared multiple quarterly rows.
func (s *DividendService) collectMissing(ctx context.Context, year int64) error {
	multi, err := s.dividends.MultiQuarterSymbols(ctx, year)
	if err != nil {
		return err
	}
	dedup, err := s.dividends.ExistingKeys(ctx, year, year-1)
	if err != nil {
		return err
	}

	var candidates []string
	for symbol, stock := range s.reference.Stocks() {
		if stock.SuspendListing || stock.Market == domain.MarketPublic {
			continue
		}
		candidates = append(candidates, symbol)
	}
	missing, err := s.dividends.NoAnnualRowSymbols(ctx, year, candidates)
	if err != nil {
		return err
	}

	targets := make(map[string]struct{}, len(missing)+len(multi))
	for _, sym := range missing {
		targets[sym] = struct{}{}
	}
	for _, sym := range multi {
		targets[sym] = struct{}{}
	}

	s.log.Info().Int("symbols", len(targets)).Int64("year", year).Msg("dividend collection started")
	for symbol := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.collectSymbol(ctx, symbol, year, dedup) {
			s.sleep(ctx, primaryThrottle)
		}
	}
	return nil
}

// collectSymbol fetches one symbol from the primary source. Returns true
// when an outbound fetch actually happened, which is what the throttle
// paces.
func (s *DividendService) collectSymbol(ctx context.Context, symbol string, year int64, dedup map[domain.DividendKey]struct{}) bool {
	flagKey := kvstore.NamespaceGoodInfoDividend + symbol
	seen, err := s.flags.HasFlag(ctx, flagKey)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("dedup flag read failed")
	}
	if seen {
		return false
	}
	// Set before fetching: a failed single shot must not be retried until
	// the flag lapses.
	if err := s.flags.SetFlag(ctx, flagKey, kvstore.FlagTTL); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("dedup flag write failed")
	}

	details, err := s.primary.Dividends(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("dividend fetch failed")
		return true
	}

	touchedYears := make(map[int64]struct{})
	for _, detail := range details {
		if detail.YearOfDividend != year && detail.YearOfDividend != year-1 {
			continue
		}
		d := detailToDividend(symbol, detail)
		if _, dup := dedup[d.Key()]; dup {
			continue
		}
		if err := s.dividends.Upsert(ctx, &d); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("dividend upsert failed")
			continue
		}
		dedup[d.Key()] = struct{}{}
		if d.Quarter != domain.QuarterAnnual {
			touchedYears[d.YearOfDividend] = struct{}{}
		}
	}
	for y := range touchedYears {
		if err := s.dividends.RefreshAnnualTotal(ctx, symbol, y); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Int64("year", y).Msg("annual total refresh failed")
		}
	}
	return true
}

// followUpDates is flow B: rows still carrying the not-yet-announced
// sentinel get re-checked against Yahoo with backoff.
func (s *DividendService) followUpDates(ctx context.Context, year int64) error {
	rows, err := s.dividends.UnannouncedDateRows(ctx, year)
	if err != nil {
		return err
	}
	s.log.Info().Int("rows", len(rows)).Msg("dividend date follow-up started")

	for i := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		row := &rows[i]
		if s.followUpRow(ctx, row) {
			s.sleep(ctx, yahooThrottle)
		}
	}
	return nil
}

func (s *DividendService) followUpRow(ctx context.Context, row *domain.Dividend) bool {
	flagKey := kvstore.NamespaceYahooDividend + row.SecurityCode
	seen, err := s.flags.HasFlag(ctx, flagKey)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", row.SecurityCode).Msg("dedup flag read failed")
	}
	if seen {
		return false
	}
	if err := s.flags.SetFlag(ctx, flagKey, kvstore.FlagTTL); err != nil {
		s.log.Warn().Err(err).Str("symbol", row.SecurityCode).Msg("dedup flag write failed")
	}

	var details []sources.DividendDetail
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(dateFollowUpBase),
		), dateFollowUpRetries), ctx)
	err = backoff.Retry(func() error {
		var fetchErr error
		details, fetchErr = s.yahoo.Dividends(ctx, row.SecurityCode)
		return fetchErr
	}, policy)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", row.SecurityCode).Msg("date follow-up fetch failed")
		return true
	}

	for _, detail := range details {
		if detail.YearOfDividend != row.YearOfDividend || detail.Quarter != row.Quarter {
			continue
		}
		if detail.ExDividendDate1 == row.ExDividendDate1 &&
			detail.ExDividendDate2 == row.ExDividendDate2 &&
			detail.PayableDate1 == row.PayableDate1 &&
			detail.PayableDate2 == row.PayableDate2 {
			continue
		}
		row.ExDividendDate1 = detail.ExDividendDate1
		row.ExDividendDate2 = detail.ExDividendDate2
		row.PayableDate1 = detail.PayableDate1
		row.PayableDate2 = detail.PayableDate2
		if err := s.dividends.UpdateDates(ctx, row); err != nil {
			s.log.Error().Err(err).Str("symbol", row.SecurityCode).Msg("date update failed")
		}
	}
	return true
}

func detailToDividend(symbol string, d sources.DividendDetail) domain.Dividend {
	return domain.Dividend{
		SecurityCode:              symbol,
		Year:                      d.Year,
		YearOfDividend:            d.YearOfDividend,
		Quarter:                   d.Quarter,
		CashDividend:              d.CashDividend(),
		CashDividendFromEarnings:  d.CashDividendFromEarnings,
		CashDividendFromReserve:   d.CashDividendFromReserve,
		StockDividend:             d.StockDividend(),
		StockDividendFromEarnings: d.StockDividendFromEarnings,
		StockDividendFromReserve:  d.StockDividendFromReserve,
		Sum:                       d.Sum(),
		PayoutRatio:               d.PayoutRatio,
		PayoutRatioCash:           d.PayoutRatioCash,
		PayoutRatioStock:          d.PayoutRatioStock,
		ExDividendDate1:           d.ExDividendDate1,
		ExDividendDate2:           d.ExDividendDate2,
		PayableDate1:              d.PayableDate1,
		PayableDate2:              d.PayableDate2,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
