package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/engine"
	"github.com/aristath/stablesats/internal/exchange"
	"github.com/aristath/stablesats/internal/hedging"
	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/pubsub"
)

func newTestEngine(t *testing.T) (*engine.Engine, *jobs.Store, *ledger.Ledger, *jobs.HistoryStore) {
	t.Helper()
	ledgerDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "ledger.db"), Profile: database.ProfileStandard, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerDB.Close() })
	require.NoError(t, ledgerDB.Migrate())

	jobsDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "jobs.db"), Profile: database.ProfileStandard, Name: "jobs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobsDB.Close() })
	require.NoError(t, jobsDB.Migrate())

	reservationsDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "reservations.db"), Profile: database.ProfileStandard, Name: "reservations"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reservationsDB.Close() })
	require.NoError(t, reservationsDB.Migrate())

	bus := pubsub.New()
	ldg := ledger.New(ledgerDB, bus, zerolog.Nop())
	require.NoError(t, ldg.EnsureJournal(ledger.JournalStablesats))
	require.NoError(t, ldg.EnsureJournal(ledger.JournalExchangePosition))
	for _, acc := range []ledger.Account{
		{Code: ledger.AccountUserLiability, Name: "user liability", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountWalletOmnibus, Name: "wallet omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExternalOmnibus, Name: "external omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExchangePositionOmni, Name: "exchange position omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountOkexPosition, Name: "okex position", NormalBalanceType: ledger.Credit},
	} {
		require.NoError(t, ldg.CreateAccount(acc))
	}

	exch := exchange.New(exchange.Config{Simulated: true}, zerolog.Nop())
	tickCache := price.NewTickCache(time.Minute)

	store := jobs.NewStore(jobsDB, zerolog.Nop())
	orderRes := jobs.NewOrderReservationStore(reservationsDB, zerolog.Nop())
	transferRes := jobs.NewTransferReservationStore(reservationsDB, zerolog.Nop())
	history := jobs.NewHistoryStore(jobsDB, zerolog.Nop())

	cfg := engine.Config{
		InstrumentID:  "BTC-USD-SWAP",
		PollFrequency: time.Hour,
		HedgeThresholds: hedging.HedgeThresholds{
			MinLiabilityCents:  decimal.NewFromInt(10_000),
			LowBoundRatio:      decimal.RequireFromString("0.95"),
			LowSafeboundRatio:  decimal.RequireFromString("0.98"),
			HighBoundRatio:     decimal.RequireFromString("1.05"),
			HighSafeboundRatio: decimal.RequireFromString("1.02"),
		},
		FundingThresholds: hedging.FundingThresholds{
			MinLiabilityCents: decimal.NewFromInt(10_000),
			MinTransferCents:  decimal.NewFromInt(1_000),
			MinFundingBtc:     decimal.RequireFromString("0.01"),
			LowBoundLev:       decimal.RequireFromString("1.5"),
			LowSafeboundLev:   decimal.RequireFromString("2"),
			HighBoundLev:      decimal.RequireFromString("3"),
			HighSafeboundLev:  decimal.RequireFromString("2"),
			HighBufferPct:     decimal.RequireFromString("0.9"),
		},
	}

	e := engine.New(cfg, exch, ldg, tickCache, bus, store, orderRes, transferRes, history, zerolog.Nop())
	return e, store, ldg, history
}

// TestEngineStartVerifiesAccountAndLaunchesWorkers exercises the full
// startup sequence: verifying account configuration, launching the
// background watchers, and starting the job runner so an enqueued poll job
// actually gets claimed and executed.
func TestEngineStartVerifiesAccountAndLaunchesWorkers(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	_, err := store.Enqueue(context.Background(), "poke-1", engine.ChannelPoll, true, []byte("{}"), time.Now())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), "poke-1")
		return err == nil && job.Status == jobs.StatusDone
	}, 3*time.Second, 10*time.Millisecond)
}

// TestAdjustHedgeJobCompletesAndRecordsHistory drives a hedge-adjustment job
// through the engine's own runner (wired up by New/Start) rather than
// calling the unexported handler directly, the same way a real balance
// event would.
func TestAdjustHedgeJobCompletesAndRecordsHistory(t *testing.T) {
	e, store, _, history := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	payload, err := jobs.EncodePayload(engine.AdjustHedgePayload{
		CorrelationID: "corr-1", Kind: string(hedging.HedgeSell), Contracts: 2,
	})
	require.NoError(t, err)
	created, err := store.Enqueue(context.Background(), "hedge-job-1", engine.ChannelAdjustHedge, true, payload, time.Now())
	require.NoError(t, err)
	require.True(t, created)

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), "hedge-job-1")
		return err == nil && job.Status == jobs.StatusDone
	}, 3*time.Second, 10*time.Millisecond)

	orders, err := history.ListByKind(context.Background(), jobs.HistoryOrder, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

// TestAdjustFundingJobOnchainDepositRecordsHistoryWithoutLedgerPost checks
// that a deposit action (which has no outbound exchange call) still
// completes the job and records history, and that the ledger balance is
// untouched since funding actions never post.
func TestAdjustFundingJobOnchainDepositRecordsHistoryWithoutLedgerPost(t *testing.T) {
	e, store, ldg, history := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	payload, err := jobs.EncodePayload(engine.AdjustFundingPayload{
		CorrelationID: "corr-2", Kind: string(hedging.FundingOnchainDeposit), AmountBtc: "0.05",
	})
	require.NoError(t, err)
	created, err := store.Enqueue(context.Background(), "funding-job-1", engine.ChannelAdjustFunding, true, payload, time.Now())
	require.NoError(t, err)
	require.True(t, created)

	require.Eventually(t, func() bool {
		job, err := store.Get(context.Background(), "funding-job-1")
		return err == nil && job.Status == jobs.StatusDone
	}, 3*time.Second, 10*time.Millisecond)

	entries, err := history.ForClient(context.Background(), "funding-job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, jobs.HistoryTransfer, entries[0].Kind)

	debits, credits, err := ldg.GetBalance(ledger.AccountOkexPosition, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.True(t, debits.IsZero())
	assert.True(t, credits.IsZero())
}
