package services

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/publicoffering"
	"github.com/aristath/twstock/internal/modules/revenue"
	"github.com/aristath/twstock/internal/modules/settings"
	"github.com/aristath/twstock/internal/modules/universe"
	"github.com/aristath/twstock/internal/sources"
)

// symbolFanout bounds per-symbol concurrency inside a backfill.
const symbolFanout = 16

// StockPusher pushes stock-master mutations to the sibling service.
// Failures are logged only; the push is advisory.
type StockPusher interface {
	PushStockInfo(ctx context.Context, s *domain.Stock) error
}

// BackfillService owns the scheduled reference-data refreshers.
type BackfillService struct {
	listings  sources.ListingsSource
	revenues  sources.RevenueSource
	eps       sources.EpsSource
	statement sources.FinancialStatementSource
	annual    sources.AnnualProfitSource
	weights   sources.WeightsSource
	nav       sources.NavSource
	qfii      sources.QfiiSource
	offerings sources.PublicOfferingSource
	holidays  sources.HolidaySource
	suspended sources.SuspendListingSource

	stocks    *universe.StockRepository
	revenue   *revenue.Repository
	publics   *publicoffering.Repository
	settings  *settings.Repository
	reference *cache.Reference
	notifier  *Notifier
	pusher    StockPusher
	log       zerolog.Logger

	now func() time.Time
}

// BackfillDeps bundles the constructor arguments.
type BackfillDeps struct {
	Listings  sources.ListingsSource
	Revenues  sources.RevenueSource
	Eps       sources.EpsSource
	Statement sources.FinancialStatementSource
	Annual    sources.AnnualProfitSource
	Weights   sources.WeightsSource
	Nav       sources.NavSource
	Qfii      sources.QfiiSource
	Offerings sources.PublicOfferingSource
	Holidays  sources.HolidaySource
	Suspended sources.SuspendListingSource

	Stocks    *universe.StockRepository
	Revenue   *revenue.Repository
	Publics   *publicoffering.Repository
	Settings  *settings.Repository
	Reference *cache.Reference
	Notifier  *Notifier
	Pusher    StockPusher
}

// NewBackfillService wires the backfill jobs.
func NewBackfillService(deps BackfillDeps, log zerolog.Logger) *BackfillService {
	return &BackfillService{
		listings:  deps.Listings,
		revenues:  deps.Revenues,
		eps:       deps.Eps,
		statement: deps.Statement,
		annual:    deps.Annual,
		weights:   deps.Weights,
		nav:       deps.Nav,
		qfii:      deps.Qfii,
		offerings: deps.Offerings,
		holidays:  deps.Holidays,
		suspended: deps.Suspended,
		stocks:    deps.Stocks,
		revenue:   deps.Revenue,
		publics:   deps.Publics,
		settings:  deps.Settings,
		reference: deps.Reference,
		notifier:  deps.Notifier,
		pusher:    deps.Pusher,
		log:       log.With().Str("service", "backfill").Logger(),
		now:       time.Now,
	}
}

// RefreshListings pulls the listings pages for every market and upserts the
// master rows. New or renamed rows are pushed to the sibling service.
func (s *BackfillService) RefreshListings(ctx context.Context) error {
	markets := []domain.Market{
		domain.MarketPublic, domain.MarketListed,
		domain.MarketOverTheCounter, domain.MarketEmerging,
	}
	for _, market := range markets {
		listings, err := s.listings.Listings(ctx, market)
		if err != nil {
			s.log.Error().Err(err).Stringer("market", market).Msg("listings fetch failed")
			continue
		}
		for _, l := range listings {
			stock := domain.Stock{
				Symbol:   l.Symbol,
				Name:     l.Name,
				Market:   l.Market,
				Industry: domain.IndustryID(l.Industry),
			}
			prior, known := s.reference.GetStock(l.Symbol)
			if known && prior.Name == stock.Name && prior.Market == stock.Market {
				continue
			}
			if err := s.stocks.Upsert(ctx, &stock); err != nil {
				s.log.Error().Err(err).Str("symbol", l.Symbol).Msg("stock upsert failed")
				continue
			}
			if known {
				// Preserve the analytics columns the upsert left alone.
				prior.Name = stock.Name
				prior.Market = stock.Market
				prior.Industry = stock.Industry
				stock = prior
			}
			s.reference.SetStock(stock)
			if s.pusher != nil {
				if err := s.pusher.PushStockInfo(ctx, &stock); err != nil {
					s.log.Warn().Err(err).Str("symbol", l.Symbol).Msg("stock push failed")
				}
			}
		}
		s.log.Info().Stringer("market", market).Int("rows", len(listings)).Msg("listings refreshed")
	}
	return nil
}

// MonthlyRevenue pulls the previous month's revenue report.
func (s *BackfillService) MonthlyRevenue(ctx context.Context) error {
	prev := s.now().AddDate(0, -1, 0)
	revenues, err := s.revenues.Revenues(ctx, prev.Year(), prev.Month())
	if err != nil {
		return err
	}
	yyyymm := int64(prev.Year()*100 + int(prev.Month()))
	for i := range revenues {
		if err := s.revenue.Upsert(ctx, &revenues[i]); err != nil {
			s.log.Error().Err(err).Str("symbol", revenues[i].SecurityCode).Msg("revenue upsert failed")
		}
	}
	monthStart := time.Date(prev.Year(), prev.Month(), 1, 0, 0, 0, 0, time.UTC)
	touched, err := s.revenue.RefreshPriceStats(ctx, yyyymm, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		s.log.Error().Err(err).Int64("month", yyyymm).Msg("revenue price stats refresh failed")
	}

	s.reference.SetRevenues(yyyymm, revenues)
	if err := s.settings.Set(ctx, settings.KeyLastRevenueMonth, strconv.FormatInt(yyyymm, 10)); err != nil {
		s.log.Warn().Err(err).Int64("month", yyyymm).Msg("revenue watermark write failed")
	}
	s.log.Info().Int64("month", yyyymm).Int("rows", len(revenues)).Int64("price_stats", touched).Msg("monthly revenue backfilled")
	return nil
}

// QuarterlyEps pulls the latest published quarter's EPS summary and rolls
// each symbol's four-quarter aggregate.
func (s *BackfillService) QuarterlyEps(ctx context.Context) error {
	year, quarter := lastPublishedQuarter(s.now())
	summaries, err := s.eps.QuarterlyEps(ctx, year, quarter)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolFanout)
	for _, summary := range summaries {
		g.Go(func() error {
			stock, ok := s.reference.GetStock(summary.SecurityCode)
			if !ok || stock.IsPreferred() {
				return nil
			}
			// Roll: drop the same quarter last year, add this one.
			lastFour := stock.LastFourQuartersEPS - stock.LastQuarterEPS + summary.EPS
			if stock.LastQuarterEPS == 0 {
				lastFour = stock.LastFourQuartersEPS + summary.EPS
			}
			if err := s.stocks.UpdateQuarterEps(gctx, summary.SecurityCode, summary.EPS, lastFour); err != nil {
				s.log.Error().Err(err).Str("symbol", summary.SecurityCode).Msg("eps update failed")
				return nil
			}
			stock.LastQuarterEPS = summary.EPS
			stock.LastFourQuartersEPS = lastFour
			s.reference.SetStock(stock)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.log.Info().Int("year", year).Int("quarter", quarter).Int("rows", len(summaries)).Msg("quarterly eps backfilled")
	return nil
}

// QuarterlyStatements pulls the balance-sheet summary and refreshes net
// asset values for listed and over-the-counter symbols.
func (s *BackfillService) QuarterlyStatements(ctx context.Context) error {
	year, quarter := lastPublishedQuarter(s.now())
	statements, err := s.statement.FinancialStatements(ctx, year, quarter)
	if err != nil {
		return err
	}
	for _, st := range statements {
		if st.NetAssetValuePerShare <= 0 {
			continue
		}
		if err := s.stocks.UpdateNav(ctx, st.SecurityCode, st.NetAssetValuePerShare); err != nil {
			s.log.Error().Err(err).Str("symbol", st.SecurityCode).Msg("nav update failed")
			continue
		}
		if stock, ok := s.reference.GetStock(st.SecurityCode); ok {
			stock.NetAssetValuePerShare = st.NetAssetValuePerShare
			s.reference.SetStock(stock)
		}
	}
	s.log.Info().Int("rows", len(statements)).Msg("quarterly statements backfilled")
	return nil
}

// AnnualProfits pulls the previous year's profitability report.
func (s *BackfillService) AnnualProfits(ctx context.Context) error {
	year := s.now().Year() - 1
	entries, err := s.annual.AnnualProfits(ctx, year)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.stocks.UpdateAnnualProfit(ctx, e.SecurityCode, e.EPS, e.ROE); err != nil {
			s.log.Error().Err(err).Str("symbol", e.SecurityCode).Msg("annual profit update failed")
			continue
		}
		if stock, ok := s.reference.GetStock(e.SecurityCode); ok {
			stock.LastFourQuartersEPS = e.EPS
			stock.ReturnOnEquity = e.ROE
			s.reference.SetStock(stock)
		}
	}
	s.log.Info().Int("year", year).Int("rows", len(entries)).Msg("annual profits backfilled")
	return nil
}

// RefreshWeights replaces the index weights from the futures exchange table.
func (s *BackfillService) RefreshWeights(ctx context.Context) error {
	weights, err := s.weights.Weights(ctx)
	if err != nil {
		return err
	}
	if err := s.stocks.ReplaceWeights(ctx, weights); err != nil {
		return err
	}
	for symbol, w := range weights {
		if stock, ok := s.reference.GetStock(symbol); ok {
			stock.Weight = w
			s.reference.SetStock(stock)
		}
	}
	s.log.Info().Int("constituents", len(weights)).Msg("index weights refreshed")
	return nil
}

// EmergingNav pulls net asset values for the emerging market.
func (s *BackfillService) EmergingNav(ctx context.Context) error {
	entries, err := s.nav.NetAssetValues(ctx)
	if err != nil {
		return err
	}
	return s.applyNavEntries(ctx, entries)
}

// ZeroNavRescan re-applies the freshest NAV observations to symbols whose
// NAV is still unset.
func (s *BackfillService) ZeroNavRescan(ctx context.Context) error {
	missing, err := s.stocks.ZeroNavSymbols(ctx)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	entries, err := s.nav.NetAssetValues(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]struct{}, len(missing))
	for _, sym := range missing {
		want[sym] = struct{}{}
	}
	var filtered []sources.NavEntry
	for _, e := range entries {
		if _, ok := want[e.SecurityCode]; ok {
			filtered = append(filtered, e)
		}
	}
	s.log.Info().Int("missing", len(missing)).Int("matched", len(filtered)).Msg("zero-nav rescan")
	return s.applyNavEntries(ctx, filtered)
}

func (s *BackfillService) applyNavEntries(ctx context.Context, entries []sources.NavEntry) error {
	for _, e := range entries {
		if e.NetAssetValuePerShare <= 0 {
			continue
		}
		if err := s.stocks.UpdateNav(ctx, e.SecurityCode, e.NetAssetValuePerShare); err != nil {
			s.log.Error().Err(err).Str("symbol", e.SecurityCode).Msg("nav update failed")
			continue
		}
		if stock, ok := s.reference.GetStock(e.SecurityCode); ok {
			stock.NetAssetValuePerShare = e.NetAssetValuePerShare
			s.reference.SetStock(stock)
		}
	}
	return nil
}

// QfiiHoldings pulls the foreign-holding report for today.
func (s *BackfillService) QfiiHoldings(ctx context.Context) error {
	holdings, err := s.qfii.QfiiHoldings(ctx, s.now())
	if err != nil {
		return err
	}
	for _, h := range holdings {
		if err := s.stocks.UpdateForeignHolding(ctx, h); err != nil {
			s.log.Error().Err(err).Str("symbol", h.SecurityCode).Msg("foreign holding update failed")
			continue
		}
		if stock, ok := s.reference.GetStock(h.SecurityCode); ok {
			stock.IssuedShares = h.IssuedShares
			stock.ForeignHoldingShares = h.HoldingShares
			stock.ForeignHoldingPercent = h.HoldingPercent
			s.reference.SetStock(stock)
		}
	}
	s.log.Info().Int("rows", len(holdings)).Msg("qfii holdings backfilled")
	return nil
}

// DelistingSweep marks suspended symbols. Master rows are never deleted.
func (s *BackfillService) DelistingSweep(ctx context.Context) error {
	symbols, err := s.suspended.SuspendedListings(ctx)
	if err != nil {
		return err
	}
	var fresh []string
	for _, sym := range symbols {
		if stock, ok := s.reference.GetStock(sym); ok && !stock.SuspendListing {
			fresh = append(fresh, sym)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	n, err := s.stocks.MarkSuspended(ctx, fresh)
	if err != nil {
		return err
	}
	for _, sym := range fresh {
		if stock, ok := s.reference.GetStock(sym); ok {
			stock.SuspendListing = true
			s.reference.SetStock(stock)
		}
	}
	s.log.Info().Int64("marked", n).Msg("delisting sweep done")
	return nil
}

// PublicOfferings pulls new-listing subscription windows and notifies once
// per newly discovered window.
func (s *BackfillService) PublicOfferings(ctx context.Context) error {
	offerings, err := s.offerings.PublicOfferings(ctx)
	if err != nil {
		return err
	}
	for i := range offerings {
		p := &offerings[i]
		created, err := s.publics.Upsert(ctx, p)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", p.StockSymbol).Msg("offering upsert failed")
			continue
		}
		if created {
			s.notifier.Send("新申購: " + symbolLink(p.StockSymbol, p.Name) + "\n" +
				"申購期間 " + p.SubscriptionBegin.Format("2006-01-02") + " ~ " +
				p.SubscriptionEnd.Format("2006-01-02"))
		}
	}
	s.log.Info().Int("rows", len(offerings)).Msg("public offerings backfilled")
	return nil
}

// Holidays verifies the holiday schedule is reachable; an unexpected stat
// is the user's business, so it goes to the chat channel.
func (s *BackfillService) Holidays(ctx context.Context) error {
	_, err := s.holidays.Holidays(ctx, s.now().Year())
	if err != nil {
		s.notifier.Send("假日行事曆查詢失敗: " + err.Error())
		return err
	}
	return nil
}

// lastPublishedQuarter maps today onto the most recently published
// reporting quarter (statements lag one quarter, Q4 lags into May).
func lastPublishedQuarter(now time.Time) (int, int) {
	year := now.Year()
	switch {
	case now.Month() >= time.November:
		return year, 3
	case now.Month() >= time.August:
		return year, 2
	case now.Month() >= time.May:
		return year, 1
	default:
		return year - 1, 3
	}
}
