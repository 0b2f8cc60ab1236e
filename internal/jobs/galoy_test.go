package jobs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/pubsub"
)

type fakeGaloySource struct {
	batches [][]jobs.GaloyTransaction
	calls   int
}

func (f *fakeGaloySource) ListSince(ctx context.Context, cursor string) ([]jobs.GaloyTransaction, string, error) {
	if f.calls >= len(f.batches) {
		return nil, cursor, nil
	}
	batch := f.batches[f.calls]
	f.calls++
	next := cursor
	if len(batch) > 0 {
		next = batch[len(batch)-1].ID
	}
	return batch, next, nil
}

func newTestGaloyPoller(t *testing.T, source jobs.GaloyTransactionSource) *jobs.GaloyPoller {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "jobs.db"), Profile: database.ProfileStandard, Name: "jobs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	ledgerDB, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "ledger.db"), Profile: database.ProfileStandard, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerDB.Close() })
	require.NoError(t, ledgerDB.Migrate())

	bus := pubsub.New()
	ldg := ledger.New(ledgerDB, bus, zerolog.Nop())
	require.NoError(t, ldg.EnsureJournal(ledger.JournalStablesats))
	for _, acc := range []ledger.Account{
		{Code: ledger.AccountUserLiability, Name: "user liability", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountWalletOmnibus, Name: "wallet omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountExternalOmnibus, Name: "external omnibus", NormalBalanceType: ledger.Debit},
	} {
		require.NoError(t, ldg.CreateAccount(acc))
	}

	return jobs.NewGaloyPoller(db, ldg, source, zerolog.Nop())
}

func TestGaloyPoller_PostsNewTransactionsOnce(t *testing.T) {
	source := &fakeGaloySource{batches: [][]jobs.GaloyTransaction{
		{
			{ID: "galoy-1", Direction: ledger.Credit, SatAmount: decimal.NewFromInt(100_000), CentAmount: decimal.NewFromInt(5_000)},
			{ID: "galoy-2", Direction: ledger.Debit, SatAmount: decimal.NewFromInt(20_000), CentAmount: decimal.NewFromInt(1_000)},
		},
	}}
	p := newTestGaloyPoller(t, source)
	ctx := context.Background()

	posted, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, posted)

	// A second poll with no new transactions posts nothing further.
	posted, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, posted)
}

func TestGaloyPoller_SkipsAlreadyProcessedTransaction(t *testing.T) {
	txn := jobs.GaloyTransaction{ID: "galoy-dup", Direction: ledger.Credit, SatAmount: decimal.NewFromInt(50_000), CentAmount: decimal.NewFromInt(2_500)}
	source := &fakeGaloySource{batches: [][]jobs.GaloyTransaction{{txn}, {txn}}}
	p := newTestGaloyPoller(t, source)
	ctx := context.Background()

	posted, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	posted, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, posted, "the same galoy_tx_id must never post twice")
}
