package quote_test

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
	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/money"
	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/pubsub"
	"github.com/aristath/stablesats/internal/quote"
)

func newTestEngine(t *testing.T) (*quote.Engine, *ledger.Ledger) {
	t.Helper()

	quotesDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "quotes.db"), Profile: database.ProfileStandard, Name: "quotes"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = quotesDB.Close() })
	require.NoError(t, quotesDB.Migrate())

	ledgerDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "ledger.db"), Profile: database.ProfileStandard, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerDB.Close() })
	require.NoError(t, ledgerDB.Migrate())

	bus := pubsub.New()
	l := ledger.New(ledgerDB, bus, zerolog.Nop())
	require.NoError(t, l.EnsureJournal(ledger.JournalStablesats))
	for _, acc := range []ledger.Account{
		{Code: ledger.AccountUserLiability, Name: "user liability", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountWalletOmnibus, Name: "wallet omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExternalOmnibus, Name: "external omnibus", NormalBalanceType: ledger.Debit},
	} {
		require.NoError(t, l.CreateAccount(acc))
	}

	book := price.NewBookCache()
	ask := decimal.RequireFromString("0.01")
	bid := decimal.RequireFromString("0.001")
	sats := decimal.NewFromInt(1_000_000_000)
	book.ApplySnapshot(price.Snapshot{
		Timestamp: time.Now(),
		Asks:      []price.Level{{Price: ask, VolumeCents: sats.Mul(ask)}},
		Bids:      []price.Level{{Price: bid, VolumeCents: sats.Mul(bid)}},
	})
	fees := price.FeeCalculator{
		BaseRate:      decimal.RequireFromString("0.001"),
		ImmediateRate: decimal.RequireFromString("0.01"),
		DelayedRate:   decimal.RequireFromString("0.1"),
	}
	priceEngine := price.NewEngine(book, fees)

	store := quote.NewStore(quotesDB)
	return quote.NewEngine(priceEngine, store, l, 30*time.Second), l
}

func TestIssueThenAccept(t *testing.T) {
	e, l := newTestEngine(t)
	now := time.Now()

	q, err := e.Issue(quote.BuyCents, true, money.NewSatoshis(100_000_000), "corr-1", now)
	require.NoError(t, err)
	assert.False(t, q.IsAccepted())
	assert.Equal(t, money.NewUsdCents(98_900).String(), q.CentAmount.String())

	accepted, err := e.Accept(context.Background(), q.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, accepted.IsAccepted())

	_, credits, err := l.GetBalance(ledger.AccountUserLiability, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.NewFromInt(98_900)))
}

func TestAcceptTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()

	q, err := e.Issue(quote.BuyCents, true, money.NewSatoshis(1_000_000), "corr-2", now)
	require.NoError(t, err)

	_, err = e.Accept(context.Background(), q.ID, now)
	require.NoError(t, err)

	_, err = e.Accept(context.Background(), q.ID, now)
	assert.ErrorIs(t, err, quote.ErrQuoteAlreadyAccepted)
}

func TestAcceptAfterExpiryFails(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()

	q, err := e.Issue(quote.BuyCents, true, money.NewSatoshis(1_000_000), "corr-3", now)
	require.NoError(t, err)

	_, err = e.Accept(context.Background(), q.ID, now.Add(time.Minute))
	assert.ErrorIs(t, err, quote.ErrQuoteExpired)
}
