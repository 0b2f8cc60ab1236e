// Command server is the entry point for the stablesats engine: it wires
// configuration, the four SQLite-backed stores (ledger, quotes, jobs,
// reservations), the price/quote/hedging/jobs/engine components, and the
// RPC surface, then blocks until shutdown.
//
// Startup order: load config, build a logger, open and migrate the
// databases, bootstrap the ledger, wire dependencies, start the HTTP
// server in a goroutine, wait on a signal, shut everything down with a
// bounded timeout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/backup"
	"github.com/aristath/stablesats/internal/config"
	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/engine"
	"github.com/aristath/stablesats/internal/exchange"
	"github.com/aristath/stablesats/internal/feed"
	"github.com/aristath/stablesats/internal/hedging"
	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/pubsub"
	"github.com/aristath/stablesats/internal/quote"
	"github.com/aristath/stablesats/internal/rpc"
	"github.com/aristath/stablesats/internal/scheduler"
	"github.com/aristath/stablesats/pkg/logger"
)

// instrumentID is the single instrument this engine hedges against.
const instrumentID = "BTC-USD-SWAP"

// priceStaleAfter bounds how old the cached tick may be before the tick
// cache reports StalePrice to its readers (the hedging engine's price watch
// and the mixed mid rate). Conversions and quotes price from the order-book
// cache, which does not check age.
const priceStaleAfter = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting stablesats")

	ledgerDB, quotesDB, jobsDB, reservationsDB, err := openDatabases(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open databases")
	}
	defer ledgerDB.Close()
	defer quotesDB.Close()
	defer jobsDB.Close()
	defer reservationsDB.Close()

	bus := pubsub.New()

	ldg := ledger.New(ledgerDB, bus, log)
	if err := bootstrapLedger(ldg); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap ledger journals/accounts")
	}

	tickCache := price.NewTickCache(priceStaleAfter)
	bookCache := price.NewBookCache()
	fees := price.FeeCalculator{
		BaseRate:      decimal.NewFromFloat(cfg.Fees.BaseFeeRate),
		ImmediateRate: decimal.NewFromFloat(cfg.Fees.ImmediateFeeRate),
		DelayedRate:   decimal.NewFromFloat(cfg.Fees.DelayedFeeRate),
	}
	priceEngine := price.NewEngine(bookCache, fees)

	mixer := price.NewMixer()
	mixer.Register("okex", price.TickMidProvider{Cache: tickCache}, decimal.NewFromInt(1))

	exchClient := exchange.New(exchange.Config{
		BaseURL:    "https://www.okx.com",
		APIKey:     cfg.Exchange.APIKey,
		Passphrase: cfg.Exchange.Passphrase,
		SecretKey:  cfg.Exchange.SecretKey,
		Simulated:  cfg.Exchange.Simulated,
	}, log)

	quoteStore := quote.NewStore(quotesDB)
	quoteEngine := quote.NewEngine(priceEngine, quoteStore, ldg, time.Duration(cfg.Quotes.ExpirationIntervalSecs)*time.Second)

	jobStore := jobs.NewStore(jobsDB, log)
	orderRes := jobs.NewOrderReservationStore(reservationsDB, log)
	transferRes := jobs.NewTransferReservationStore(reservationsDB, log)
	history := jobs.NewHistoryStore(jobsDB, log)

	eng := engine.New(engine.Config{
		InstrumentID:      instrumentID,
		PollFrequency:     time.Duration(cfg.Funding.PollFrequencySecs) * time.Second,
		HedgeThresholds:   hedgeThresholds(cfg),
		FundingThresholds: fundingThresholds(cfg),
	}, exchClient, ldg, tickCache, bus, jobStore, orderRes, transferRes, history, log)

	rpcServer := rpc.New(rpc.Config{
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Log:         log,
		PriceEngine: priceEngine,
		Mixer:       mixer,
		Quotes:      quoteEngine,
		Bus:         bus,
	})

	marketFeed := feed.New(okexFeedURL(cfg.Exchange.Simulated), instrumentID, bookCache, tickCache, log)

	sched := scheduler.New(log)

	var galoyPoller *jobs.GaloyPoller
	if cfg.Galoy.Enabled {
		galoySource := jobs.NewGaloyClient(cfg.Galoy.Endpoint, cfg.Galoy.APIKey)
		galoyPoller = jobs.NewGaloyPoller(jobsDB, ldg, galoySource, log)
	}

	var backupSvc *backup.Service
	if cfg.Backup.Enabled {
		backupSvc, err = backup.New(context.Background(), backup.Config{
			Endpoint:        cfg.Backup.Endpoint,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
			RetentionDays:   cfg.Backup.RetentionDays,
			StagingDir:      cfg.DataDir + "/backup-staging",
			Databases: []backup.DatabaseSource{
				{Name: "ledger", DB: ledgerDB},
				{Name: "quotes", DB: quotesDB},
			},
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build backup service")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine orchestrator")
	}
	log.Info().Msg("engine orchestrator started")

	if err := marketFeed.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("market feed failed to start, will retry in background")
	}

	if galoyPoller != nil {
		if err := sched.AddJob(ctx, cfg.Galoy.CronSchedule, galoyPoller); err != nil {
			log.Error().Err(err).Msg("failed to schedule galoy transaction poll")
		}
	}
	if backupSvc != nil {
		if err := sched.AddJob(ctx, cfg.Backup.CronSchedule, backupSvc); err != nil {
			log.Error().Err(err).Msg("failed to schedule nightly backup")
		}
	}
	sched.Start()

	go func() {
		log.Info().Int("port", cfg.Port).Msg("rpc server listening")
		if err := rpcServer.Start(); err != nil {
			log.Error().Err(err).Msg("rpc server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	marketFeed.Stop()
	eng.Stop()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("rpc server forced to shutdown")
	}
	log.Info().Msg("stopped")
}

// openDatabases opens the four SQLite-backed stores this engine persists
// and applies each one's schema (internal/database/schemas). Migrate
// dispatches on db.Name() so each Config.Name here must match a key in the
// schema map.
func openDatabases(dataDir string) (ledgerDB, quotesDB, jobsDB, reservationsDB *database.DB, err error) {
	open := func(name string, profile database.DatabaseProfile) (*database.DB, error) {
		db, err := database.New(database.Config{
			Path:    fmt.Sprintf("%s/%s.db", dataDir, name),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", name, err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate %s database: %w", name, err)
		}
		return db, nil
	}

	if ledgerDB, err = open("ledger", database.ProfileLedger); err != nil {
		return nil, nil, nil, nil, err
	}
	if quotesDB, err = open("quotes", database.ProfileStandard); err != nil {
		return nil, nil, nil, nil, err
	}
	if jobsDB, err = open("jobs", database.ProfileStandard); err != nil {
		return nil, nil, nil, nil, err
	}
	if reservationsDB, err = open("reservations", database.ProfileStandard); err != nil {
		return nil, nil, nil, nil, err
	}
	return ledgerDB, quotesDB, jobsDB, reservationsDB, nil
}

// bootstrapLedger idempotently creates the journals and accounts the
// transaction templates post against. Re-running this on every startup is
// safe: both EnsureJournal and CreateAccount swallow duplicate-key errors.
func bootstrapLedger(ldg *ledger.Ledger) error {
	for _, j := range []string{ledger.JournalStablesats, ledger.JournalExchangePosition, ledger.JournalQuotes} {
		if err := ldg.EnsureJournal(j); err != nil {
			return err
		}
	}
	accounts := []ledger.Account{
		{Code: ledger.AccountUserLiability, Name: "Stablesats user USD liability", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountWalletOmnibus, Name: "BTC wallet omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExternalOmnibus, Name: "BTC external omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExchangePositionOmni, Name: "Exchange position omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountOkexPosition, Name: "OKEx position", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountOkexAllocation, Name: "OKEx allocation", NormalBalanceType: ledger.Credit},
	}
	for _, a := range accounts {
		if err := ldg.CreateAccount(a); err != nil {
			return err
		}
	}
	return nil
}

func hedgeThresholds(cfg *config.Config) hedging.HedgeThresholds {
	return hedging.HedgeThresholds{
		MinLiabilityCents:  decimal.NewFromInt(cfg.Hedging.MinLiabilityCents),
		LowBoundRatio:      decimal.NewFromFloat(cfg.Hedging.LowBoundRatio),
		LowSafeboundRatio:  decimal.NewFromFloat(cfg.Hedging.LowSafeboundRatio),
		HighBoundRatio:     decimal.NewFromFloat(cfg.Hedging.HighBoundRatio),
		HighSafeboundRatio: decimal.NewFromFloat(cfg.Hedging.HighSafeboundRatio),
	}
}

func fundingThresholds(cfg *config.Config) hedging.FundingThresholds {
	return hedging.FundingThresholds{
		MinLiabilityCents: decimal.NewFromInt(cfg.Funding.MinLiabilityCents),
		MinTransferCents:  decimal.NewFromInt(cfg.Funding.MinTransferCents),
		MinFundingBtc:     decimal.NewFromFloat(cfg.Funding.MinFundingBtc),
		LowBoundLev:       decimal.NewFromFloat(cfg.Funding.LowBoundLev),
		LowSafeboundLev:   decimal.NewFromFloat(cfg.Funding.LowSafeboundLev),
		HighBoundLev:      decimal.NewFromFloat(cfg.Funding.HighBoundLev),
		HighSafeboundLev:  decimal.NewFromFloat(cfg.Funding.HighSafeboundLev),
		HighBufferPct:     decimal.NewFromFloat(cfg.Funding.HighBufferPct),
	}
}

// okexFeedURL picks the live or simulated-trading public order-book
// WebSocket endpoint.
func okexFeedURL(simulated bool) string {
	if simulated {
		return "wss://wspap.okx.com:8443/ws/v5/public"
	}
	return "wss://ws.okx.com:8443/ws/v5/public"
}
