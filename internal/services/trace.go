package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/kvstore"
	"github.com/aristath/twstock/internal/modules/estimates"
	"github.com/aristath/twstock/internal/modules/moneyhistory"
)

// TraceQuoteService watches held symbols against their valuation bands and
// notifies when a closing price enters the cheap band. Notifications are
// debounced: the same price is never reported twice while the TTL entry
// lives, and the K/V flag survives restarts.
type TraceQuoteService struct {
	money     *moneyhistory.Repository
	estimates *estimates.Repository
	reference *cache.Reference
	ttl       *cache.TTL
	flags     *kvstore.Store
	notifier  *Notifier
	log       zerolog.Logger
}

// NewTraceQuoteService creates the trace-quote evaluator.
func NewTraceQuoteService(
	money *moneyhistory.Repository,
	est *estimates.Repository,
	ref *cache.Reference,
	ttl *cache.TTL,
	flags *kvstore.Store,
	notifier *Notifier,
	log zerolog.Logger,
) *TraceQuoteService {
	return &TraceQuoteService{
		money:     money,
		estimates: est,
		reference: ref,
		ttl:       ttl,
		flags:     flags,
		notifier:  notifier,
		log:       log.With().Str("service", "trace_quote").Logger(),
	}
}

// Evaluate runs one pass over the held symbols.
func (s *TraceQuoteService) Evaluate(ctx context.Context) error {
	lots, err := s.money.ActiveLots(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for _, lot := range lots {
		if _, done := seen[lot.SecurityCode]; done {
			continue
		}
		seen[lot.SecurityCode] = struct{}{}
		s.evaluateSymbol(ctx, lot.SecurityCode)
	}
	return nil
}

// EvaluateTrade runs the same check against a live trade price, fed from
// the realtime stream. Must not block.
func (s *TraceQuoteService) EvaluateTrade(ctx context.Context, symbol string, price float64) {
	if price <= 0 {
		return
	}
	s.check(ctx, symbol, price)
}

func (s *TraceQuoteService) evaluateSymbol(ctx context.Context, symbol string) {
	quote, ok := s.reference.GetLastDailyQuote(symbol)
	if !ok || quote.ClosingPrice <= 0 {
		return
	}
	s.check(ctx, symbol, quote.ClosingPrice)
}

func (s *TraceQuoteService) check(ctx context.Context, symbol string, price float64) {
	est, err := s.estimates.Latest(ctx, symbol)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", symbol).Msg("no estimate for held symbol")
		return
	}
	if est.Cheap <= 0 || price > est.Cheap {
		return
	}

	if last, ok := s.ttl.LastNotifiedPrice(symbol); ok && last == price {
		return
	}
	flagKey := kvstore.NamespaceTraceQuote + symbol
	var lastPersisted float64
	if found, err := s.flags.GetValue(ctx, flagKey, &lastPersisted); err == nil &&
		found && lastPersisted == price {
		return
	}

	name := symbol
	if stock, ok := s.reference.GetStock(symbol); ok {
		name = stock.Name
	}
	s.notifier.Send(fmt.Sprintf("%s 現價 %.2f 已低於便宜價 %.2f",
		symbolLink(symbol, name), price, est.Cheap))

	s.ttl.SetLastNotifiedPrice(symbol, price)
	if err := s.flags.SetValue(ctx, flagKey, price, kvstore.FlagTTL); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("trace flag write failed")
	}
}
