package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/ledger"
)

func newTestLedgerWithExchangeAccounts(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.EnsureJournal(ledger.JournalExchangePosition))
	for _, acc := range []ledger.Account{
		{Code: ledger.AccountExchangePositionOmni, Name: "exchange position omnibus", NormalBalanceType: ledger.Debit},
		{Code: ledger.AccountOkexPosition, Name: "okex position", NormalBalanceType: ledger.Credit},
		{Code: ledger.AccountOkexAllocation, Name: "okex allocation", NormalBalanceType: ledger.Credit},
	} {
		require.NoError(t, l.CreateAccount(acc))
	}
	return l
}

func TestAdjustExchangePositionGrowsAndShrinksPosition(t *testing.T) {
	l := newTestLedgerWithExchangeAccounts(t)
	ctx := context.Background()

	grow := ledger.AdjustExchangePosition(uuid.NewString(), "corr-1", ledger.AccountOkexPosition, decimal.NewFromInt(10_000))
	require.NoError(t, l.Post(ctx, grow))
	_, credits, err := l.GetBalance(ledger.AccountOkexPosition, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewFromInt(10_000).String(), credits.String())

	shrink := ledger.AdjustExchangePosition(uuid.NewString(), "corr-2", ledger.AccountOkexPosition, decimal.NewFromInt(-4_000))
	require.NoError(t, l.Post(ctx, shrink))
	debits, credits, err := l.GetBalance(ledger.AccountOkexPosition, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewFromInt(4_000).String(), debits.String())
	assert.Equal(t, decimal.NewFromInt(10_000).String(), credits.String())
}

func TestAdjustExchangeAllocationMovesSharedLiability(t *testing.T) {
	l := newTestLedgerWithExchangeAccounts(t)
	ctx := context.Background()

	allocate := ledger.AdjustExchangeAllocation(uuid.NewString(), "corr-3", ledger.AccountOkexAllocation, decimal.NewFromInt(25_000))
	require.NoError(t, l.Post(ctx, allocate))

	_, credits, err := l.GetBalance(ledger.AccountUserLiability, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewFromInt(25_000).String(), credits.String())

	debits, _, err := l.GetBalance(ledger.AccountOkexAllocation, "USD", ledger.Settled)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewFromInt(25_000).String(), debits.String())
}
