package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/dividends"
	"github.com/aristath/twstock/internal/modules/estimates"
	"github.com/aristath/twstock/internal/modules/quotes"
)

// Valuation constants. The dividend multiples correspond to 6.67% / 5% /
// 3.33% yield thresholds.
const (
	estimateYears = 10
	dividendYears = 5

	multipleCheap     = 15.0
	multipleFair      = 20.0
	multipleExpensive = 30.0
)

// EstimateService recomputes the valuation bands and the yield ranking
// (closing pipeline steps 8 and 9).
type EstimateService struct {
	daily     *quotes.DailyQuoteRepository
	dividends *dividends.Repository
	estimates *estimates.Repository
	reference *cache.Reference
	log       zerolog.Logger
}

// NewEstimateService creates the valuation service.
func NewEstimateService(
	daily *quotes.DailyQuoteRepository,
	div *dividends.Repository,
	est *estimates.Repository,
	ref *cache.Reference,
	log zerolog.Logger,
) *EstimateService {
	return &EstimateService{
		daily:     daily,
		dividends: div,
		estimates: est,
		reference: ref,
		log:       log.With().Str("service", "estimate").Logger(),
	}
}

// band is one method's cheap/fair/expensive triple. A zero band carries no
// weight in the final average.
type band struct {
	cheap, fair, expensive float64
}

func (b band) valid() bool {
	return b.cheap > 0 && b.fair >= b.cheap && b.expensive >= b.fair
}

// RecomputeAll rebuilds the bands for every listed, non-suspended common
// share and the day's yield ranking.
func (s *EstimateService) RecomputeAll(ctx context.Context, date time.Time) error {
	var ranks []domain.YieldRank
	for symbol, stock := range s.reference.Stocks() {
		if stock.SuspendListing || stock.Market == domain.MarketPublic {
			continue
		}
		est, yield, err := s.compute(ctx, &stock, date)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("estimate computation failed")
			continue
		}
		if est == nil {
			continue
		}
		if err := s.estimates.Upsert(ctx, est); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("estimate upsert failed")
			continue
		}
		if yield > 0 {
			ranks = append(ranks, domain.YieldRank{
				Date:         date,
				SecurityCode: symbol,
				Yield:        yield,
			})
		}
	}

	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Yield > ranks[j].Yield })
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	if err := s.estimates.RebuildYieldRanks(ctx, date, ranks); err != nil {
		return err
	}
	s.log.Info().Int("ranked", len(ranks)).Msg("estimates recomputed")
	return nil
}

// compute derives one symbol's bands. Returns nil without error when there
// is not enough history to say anything.
func (s *EstimateService) compute(ctx context.Context, stock *domain.Stock, date time.Time) (*domain.Estimate, float64, error) {
	closes, err := s.daily.ClosingPrices(ctx, stock.Symbol, date, estimateYears)
	if err != nil {
		return nil, 0, err
	}
	// A year of observations minimum; percentile bands over less are noise.
	if len(closes) < 240 {
		return nil, 0, nil
	}

	sums, err := s.dividends.AnnualSums(ctx, stock.Symbol, int64(date.Year()-dividendYears))
	if err != nil {
		return nil, 0, err
	}

	sorted := append([]float64(nil), closes...)
	sort.Float64s(sorted)

	est := &domain.Estimate{
		Date:         date,
		SecurityCode: stock.Symbol,
		RoundsYears:  len(sums),
	}

	price := band{
		cheap:     stat.Quantile(0.25, stat.Empirical, sorted, nil),
		fair:      stat.Quantile(0.50, stat.Empirical, sorted, nil),
		expensive: stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
	est.PriceCheap, est.PriceFair, est.PriceExpensive = price.cheap, price.fair, price.expensive

	avgDividend := averageDividend(sums)
	dividend := band{
		cheap:     round2(avgDividend * multipleCheap),
		fair:      round2(avgDividend * multipleFair),
		expensive: round2(avgDividend * multipleExpensive),
	}
	est.DividendCheap, est.DividendFair, est.DividendExpensive = dividend.cheap, dividend.fair, dividend.expensive

	// Preferred shares carry no EPS-based methods.
	var eps, pbr, per band
	if !stock.IsPreferred() && stock.LastFourQuartersEPS > 0 {
		payout := payoutEstimate(avgDividend, stock.LastFourQuartersEPS)
		implied := stock.LastFourQuartersEPS * payout
		eps = band{
			cheap:     round2(implied * multipleCheap),
			fair:      round2(implied * multipleFair),
			expensive: round2(implied * multipleExpensive),
		}
		est.EPSCheap, est.EPSFair, est.EPSExpensive = eps.cheap, eps.fair, eps.expensive

		pers := scaleSeries(sorted, 1/stock.LastFourQuartersEPS)
		per = band{
			cheap:     round2(stat.Quantile(0.10, stat.Empirical, pers, nil) * stock.LastFourQuartersEPS),
			fair:      round2(stat.Quantile(0.50, stat.Empirical, pers, nil) * stock.LastFourQuartersEPS),
			expensive: round2(stat.Quantile(0.90, stat.Empirical, pers, nil) * stock.LastFourQuartersEPS),
		}
		est.PERCheap, est.PERFair, est.PERExpensive = per.cheap, per.fair, per.expensive
	}

	if stock.NetAssetValuePerShare > 0 {
		pbrs := scaleSeries(sorted, 1/stock.NetAssetValuePerShare)
		pbr = band{
			cheap:     round2(stat.Quantile(0.10, stat.Empirical, pbrs, nil) * stock.NetAssetValuePerShare),
			fair:      round2(stat.Quantile(0.50, stat.Empirical, pbrs, nil) * stock.NetAssetValuePerShare),
			expensive: round2(stat.Quantile(0.90, stat.Empirical, pbrs, nil) * stock.NetAssetValuePerShare),
		}
		est.PBRCheap, est.PBRFair, est.PBRExpensive = pbr.cheap, pbr.fair, pbr.expensive
	}

	est.Cheap, est.Fair, est.Expensive = combine(price, dividend, eps, pbr, per)
	if est.Cheap == 0 {
		return nil, 0, nil
	}

	var yield float64
	if q, ok := s.reference.GetLastDailyQuote(stock.Symbol); ok && q.ClosingPrice > 0 && avgDividend > 0 {
		yield = round2(avgDividend / q.ClosingPrice * 100)
	}
	return est, yield, nil
}

// combine averages the valid method bands into the weighted triple.
func combine(bands ...band) (cheap, fair, expensive float64) {
	var n float64
	for _, b := range bands {
		if !b.valid() {
			continue
		}
		cheap += b.cheap
		fair += b.fair
		expensive += b.expensive
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return round2(cheap / n), round2(fair / n), round2(expensive / n)
}

func averageDividend(sums map[int64]float64) float64 {
	if len(sums) == 0 {
		return 0
	}
	var total float64
	for _, v := range sums {
		total += v
	}
	return total / float64(len(sums))
}

// payoutEstimate caps the implied payout ratio at 1.
func payoutEstimate(avgDividend, eps float64) float64 {
	if eps <= 0 {
		return 0
	}
	ratio := avgDividend / eps
	if ratio > 1 {
		return 1
	}
	return ratio
}

func scaleSeries(sorted []float64, factor float64) []float64 {
	out := make([]float64, len(sorted))
	for i, v := range sorted {
		out[i] = v * factor
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
