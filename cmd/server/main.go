// Package main is the entry point for the twstock data collection service.
// It crawls Taiwan market sources on a fixed schedule, persists quotes,
// dividends and derived valuations, and answers live-quote RPCs from the
// sibling service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/twstock/internal/cache"
	"github.com/aristath/twstock/internal/clients/fugle"
	"github.com/aristath/twstock/internal/clients/goodinfo"
	"github.com/aristath/twstock/internal/clients/histock"
	"github.com/aristath/twstock/internal/clients/mops"
	"github.com/aristath/twstock/internal/clients/taifex"
	"github.com/aristath/twstock/internal/clients/tpex"
	"github.com/aristath/twstock/internal/clients/twse"
	"github.com/aristath/twstock/internal/clients/yahoo"
	"github.com/aristath/twstock/internal/config"
	"github.com/aristath/twstock/internal/database"
	"github.com/aristath/twstock/internal/httpx"
	"github.com/aristath/twstock/internal/kvstore"
	"github.com/aristath/twstock/internal/modules/dividends"
	"github.com/aristath/twstock/internal/modules/estimates"
	"github.com/aristath/twstock/internal/modules/moneyhistory"
	"github.com/aristath/twstock/internal/modules/publicoffering"
	"github.com/aristath/twstock/internal/modules/quotes"
	"github.com/aristath/twstock/internal/modules/revenue"
	"github.com/aristath/twstock/internal/modules/settings"
	"github.com/aristath/twstock/internal/modules/universe"
	"github.com/aristath/twstock/internal/scheduler"
	"github.com/aristath/twstock/internal/server"
	"github.com/aristath/twstock/internal/services"
	"github.com/aristath/twstock/internal/sources"
	"github.com/aristath/twstock/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: os.Getenv("LOG_PRETTY") == "1",
		Dir:    cfg.LogDir,
	})
	logger.SetGlobalLogger(log)
	log.Info().Msg("twstock starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DSN(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	flags, err := kvstore.New(ctx, kvstore.Config{
		Addr:     cfg.Redis.Addr,
		Account:  cfg.Redis.Account,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		return err
	}
	defer flags.Close()

	pool := db.Pool()
	stockRepo := universe.NewStockRepository(pool, log)
	dailyRepo := quotes.NewDailyQuoteRepository(pool, log)
	lastRepo := quotes.NewLastDailyQuotesRepository(pool, log)
	indexRepo := quotes.NewIndexRepository(pool, log)
	historyRepo := quotes.NewQuoteHistoryRepository(pool, log)
	dividendRepo := dividends.NewRepository(pool, log)
	revenueRepo := revenue.NewRepository(pool, log)
	estimateRepo := estimates.NewRepository(pool, log)
	moneyRepo := moneyhistory.NewRepository(pool, log)
	settingsRepo := settings.NewRepository(pool, log)
	offeringRepo := publicoffering.NewRepository(pool, log)

	reference := cache.NewReference(log)
	loader := cache.NewRepositoryLoader(stockRepo, lastRepo, indexRepo, historyRepo, revenueRepo)
	if err := reference.Load(ctx, loader); err != nil {
		return fmt.Errorf("failed to warm reference cache: %w", err)
	}
	ttl := cache.NewTTL()

	web := httpx.New(log)
	twseClient := twse.New(web, log)
	tpexClient := tpex.New(web, log)
	yahooClient := yahoo.New(web, log)
	goodinfoClient := goodinfo.New(web, log)
	histockClient := histock.New(web, log)
	mopsClient := mops.New(web, log)
	taifexClient := taifex.New(web, log)
	fugleClient := fugle.New(web, cfg.FugleAPIKey, log)

	quoteMux := sources.NewMultiplexer(log, fugleClient, yahooClient, histockClient)

	notifier, err := services.NewNotifier(cfg.Telegram.Token, cfg.Telegram.Allowed, log)
	if err != nil {
		return err
	}
	notifier.Start(ctx)

	pusher, err := server.NewClient(cfg.Client, log)
	if err != nil {
		return err
	}

	estimateSvc := services.NewEstimateService(dailyRepo, dividendRepo, estimateRepo, reference, log)
	moneySvc := services.NewMoneyHistoryService(moneyRepo, estimateRepo, reference, log)
	closingSvc := services.NewClosingService(
		[]sources.DailyQuoteSource{twseClient, tpexClient},
		twseClient,
		dailyRepo, lastRepo, indexRepo, historyRepo, settingsRepo,
		estimateSvc, moneySvc,
		reference, ttl, notifier, cfg.Telegram.Allowed, log,
	)
	dividendSvc := services.NewDividendService(
		goodinfoClient, yahooClient, dividendRepo, flags, reference, log,
	)
	backfillSvc := services.NewBackfillService(services.BackfillDeps{
		Listings:  twseClient,
		Revenues:  mopsClient,
		Eps:       mopsClient,
		Statement: mopsClient,
		Annual:    mopsClient,
		Weights:   taifexClient,
		Nav:       tpexClient,
		Qfii:      twseClient,
		Offerings: twseClient,
		Holidays:  twseClient,
		Suspended: twseClient,

		Stocks:    stockRepo,
		Revenue:   revenueRepo,
		Publics:   offeringRepo,
		Settings:  settingsRepo,
		Reference: reference,
		Notifier:  notifier,
		Pusher:    pusher,
	}, log)
	reminderSvc := services.NewReminderService(dividendRepo, moneyRepo, offeringRepo, notifier, log)
	traceSvc := services.NewTraceQuoteService(moneyRepo, estimateRepo, reference, ttl, flags, notifier, log)
	ddnsSvc := services.NewDDNSService(web, cfg.DDNS, log)
	exportSvc, err := services.NewExportService(ctx, cfg.Export, reference, log)
	if err != nil {
		return err
	}

	// Optional realtime stream: live trades on held symbols run through the
	// same cheap-band check the nightly trace job uses.
	if cfg.FugleAPIKey != "" {
		lots, err := moneyRepo.ActiveLots(ctx)
		if err != nil {
			return fmt.Errorf("failed to load held lots: %w", err)
		}
		held := make(map[string]struct{}, len(lots))
		var symbols []string
		for _, lot := range lots {
			if _, ok := held[lot.SecurityCode]; ok {
				continue
			}
			held[lot.SecurityCode] = struct{}{}
			symbols = append(symbols, lot.SecurityCode)
		}
		if len(symbols) > 0 {
			feed := fugle.NewFeed(cfg.FugleAPIKey, func(trade fugle.Trade) {
				traceSvc.EvaluateTrade(ctx, trade.Symbol, trade.Price)
			}, log)
			go feed.Run(ctx, symbols)
		}
	}

	rpc := server.New(cfg.Server, quoteMux, log)
	rpc.Start()

	sched := scheduler.New(log)
	err = scheduler.RegisterAll(ctx, sched, scheduler.Deps{
		Closing:  closingSvc,
		Dividend: dividendSvc,
		Backfill: backfillSvc,
		Reminder: reminderSvc,
		Trace:    traceSvc,
		DDNS:     ddnsSvc,
		Export:   exportSvc,
	})
	if err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	sched.Start()
	log.Info().Msg("twstock started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := rpc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("rpc shutdown failed")
	}
	sched.Stop()
	log.Info().Msg("twstock stopped")
	return nil
}
