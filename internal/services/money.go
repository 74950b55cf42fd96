package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/estimates"
	"github.com/aristath/twstock/internal/modules/moneyhistory"
)

// MoneyHistoryService rebuilds the daily portfolio market-value family and
// the market-wide statistics row (closing pipeline step 10).
type MoneyHistoryService struct {
	money     *moneyhistory.Repository
	estimates *estimates.Repository
	reference *cache.Reference
	log       zerolog.Logger
}

// NewMoneyHistoryService creates the money-history service.
func NewMoneyHistoryService(
	money *moneyhistory.Repository,
	est *estimates.Repository,
	ref *cache.Reference,
	log zerolog.Logger,
) *MoneyHistoryService {
	return &MoneyHistoryService{
		money:     money,
		estimates: est,
		reference: ref,
		log:       log.With().Str("service", "money_history").Logger(),
	}
}

// RebuildDay computes the four money-history tables from the active lots
// and today's closing prices, and writes them in one transaction.
func (s *MoneyHistoryService) RebuildDay(ctx context.Context, date time.Time) error {
	lots, err := s.money.ActiveLots(ctx)
	if err != nil {
		return err
	}

	day := moneyhistory.DayRebuild{}

	type memberSymbol struct {
		member int64
		symbol string
	}
	totals := make(map[int64]*domain.DailyMoneyHistory)
	details := make(map[memberSymbol]*domain.DailyMoneyHistoryDetail)

	for _, lot := range lots {
		quote, ok := s.reference.GetLastDailyQuote(lot.SecurityCode)
		if !ok || quote.ClosingPrice <= 0 {
			s.log.Warn().Str("symbol", lot.SecurityCode).Msg("no closing price for held lot")
			continue
		}
		marketValue := quote.ClosingPrice * float64(lot.ShareQuantity)

		more := domain.DailyMoneyHistoryDetailMore{
			Date:                 date,
			MemberID:             lot.MemberID,
			StockOwnershipSerial: lot.Serial,
			SecurityCode:         lot.SecurityCode,
			ClosingPrice:         quote.ClosingPrice,
			ShareQuantity:        lot.ShareQuantity,
			MarketValue:          marketValue,
			HoldingCost:          lot.HoldingCost,
			Profit:               marketValue - lot.HoldingCost,
		}
		day.Mores = append(day.Mores, more)

		key := memberSymbol{lot.MemberID, lot.SecurityCode}
		detail, ok := details[key]
		if !ok {
			detail = &domain.DailyMoneyHistoryDetail{
				Date:         date,
				MemberID:     lot.MemberID,
				SecurityCode: lot.SecurityCode,
				ClosingPrice: quote.ClosingPrice,
			}
			details[key] = detail
		}
		detail.ShareQuantity += lot.ShareQuantity
		detail.MarketValue += marketValue
		detail.HoldingCost += lot.HoldingCost
		detail.Profit += more.Profit

		total, ok := totals[lot.MemberID]
		if !ok {
			total = &domain.DailyMoneyHistory{Date: date, MemberID: lot.MemberID}
			totals[lot.MemberID] = total
		}
		total.Sum += marketValue
		total.HoldingCost += lot.HoldingCost
		total.Profit += more.Profit
	}

	for _, detail := range details {
		if detail.HoldingCost > 0 {
			detail.ProfitRatio = round2(detail.Profit / detail.HoldingCost * 100)
		}
		day.Details = append(day.Details, *detail)
	}
	for _, total := range totals {
		if total.HoldingCost > 0 {
			total.ProfitRatio = round2(total.Profit / total.HoldingCost * 100)
		}
		day.Totals = append(day.Totals, *total)
	}

	stats, err := s.marketStats(ctx, date)
	if err != nil {
		return err
	}
	day.Stats = stats

	return s.money.RebuildDay(ctx, date, day)
}

// marketStats counts listed, non-suspended symbols by estimate band and by
// position relative to their own moving averages.
func (s *MoneyHistoryService) marketStats(ctx context.Context, date time.Time) (*domain.DailyStockPriceStats, error) {
	latest, err := s.estimates.LatestAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.DailyStockPriceStats{Date: date}
	for symbol, stock := range s.reference.Stocks() {
		if stock.SuspendListing || stock.Market == domain.MarketPublic {
			continue
		}
		quote, ok := s.reference.GetLastDailyQuote(symbol)
		if !ok || quote.ClosingPrice <= 0 {
			continue
		}
		close := quote.ClosingPrice

		if est, ok := latest[symbol]; ok && est.Cheap > 0 {
			switch {
			case close <= est.Cheap:
				stats.CheaperCount++
			case close >= est.Expensive:
				stats.ExpensiveCount++
			default:
				stats.FairCount++
			}
		}

		countMA(close, quote.MovingAverage5, &stats.AboveMA5Count, &stats.BelowMA5Count)
		countMA(close, quote.MovingAverage20, &stats.AboveMA20Count, &stats.BelowMA20Count)
		countMA(close, quote.MovingAverage60, &stats.AboveMA60Count, &stats.BelowMA60Count)
		countMA(close, quote.MovingAverage240, &stats.AboveMA240Count, &stats.BelowMA240Count)
	}
	return stats, nil
}

func countMA(close, ma float64, above, below *int) {
	if ma <= 0 {
		return
	}
	if close >= ma {
		*above++
	} else {
		*below++
	}
}
