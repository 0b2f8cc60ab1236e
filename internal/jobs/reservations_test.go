package jobs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/jobs"
)

func newTestReservationsDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "reservations.db"), Profile: database.ProfileStandard, Name: "reservations"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestOrderReservationStore_AtMostOnePendingPerInstrument(t *testing.T) {
	s := jobs.NewOrderReservationStore(newTestReservationsDB(t), zerolog.Nop())
	ctx := context.Background()

	first := jobs.OrderReservation{
		ClientOrderID: uuid.NewString(), CorrelationID: "corr-1", Instrument: "BTC-USD-SWAP",
		Action: "sell", Size: 3, Unit: "contracts",
		TargetUsd: decimal.NewFromInt(30_000), PreTradeUsd: decimal.NewFromInt(29_000),
	}
	require.NoError(t, s.TryReserve(ctx, first))

	second := first
	second.ClientOrderID = uuid.NewString()
	err := s.TryReserve(ctx, second)
	assert.ErrorIs(t, err, jobs.ErrNoSlot)

	require.NoError(t, s.Complete(ctx, first.ClientOrderID))
	require.NoError(t, s.TryReserve(ctx, second))
}

func TestOrderReservationStore_DifferentInstrumentsDoNotCollide(t *testing.T) {
	s := jobs.NewOrderReservationStore(newTestReservationsDB(t), zerolog.Nop())
	ctx := context.Background()

	a := jobs.OrderReservation{
		ClientOrderID: uuid.NewString(), CorrelationID: "corr-1", Instrument: "BTC-USD-SWAP",
		Action: "sell", Size: 1, Unit: "contracts", TargetUsd: decimal.NewFromInt(10_000), PreTradeUsd: decimal.NewFromInt(9_000),
	}
	b := a
	b.ClientOrderID = uuid.NewString()
	b.Instrument = "ETH-USD-SWAP"

	require.NoError(t, s.TryReserve(ctx, a))
	require.NoError(t, s.TryReserve(ctx, b))
}

func TestOrderReservationStore_SweepLostFreesSlot(t *testing.T) {
	db := newTestReservationsDB(t)
	s := jobs.NewOrderReservationStore(db, zerolog.Nop())
	ctx := context.Background()

	r := jobs.OrderReservation{
		ClientOrderID: uuid.NewString(), CorrelationID: "corr-1", Instrument: "BTC-USD-SWAP",
		Action: "buy", Size: 1, Unit: "contracts", TargetUsd: decimal.NewFromInt(10_000), PreTradeUsd: decimal.NewFromInt(9_000),
	}
	require.NoError(t, s.TryReserve(ctx, r))

	// Freshly created, so nothing is old enough to sweep yet.
	n, err := s.SweepLost(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = db.Exec(`UPDATE order_reservations SET created_at = '2000-01-01T00:00:00Z' WHERE client_order_id = ?`, r.ClientOrderID)
	require.NoError(t, err)

	n, err = s.SweepLost(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	next := r
	next.ClientOrderID = uuid.NewString()
	require.NoError(t, s.TryReserve(ctx, next))
}

func TestTransferReservationStore_AtMostOnePendingPerType(t *testing.T) {
	s := jobs.NewTransferReservationStore(newTestReservationsDB(t), zerolog.Nop())
	ctx := context.Background()

	first := jobs.TransferReservation{
		ClientTransferID: uuid.NewString(), CorrelationID: "corr-1", Action: "transfer_to_trading",
		TransferType: "internal", Amount: decimal.RequireFromString("0.5"), FromWallet: "funding", ToWallet: "trading",
	}
	require.NoError(t, s.TryReserve(ctx, first))

	second := first
	second.ClientTransferID = uuid.NewString()
	err := s.TryReserve(ctx, second)
	assert.ErrorIs(t, err, jobs.ErrNoSlot)

	require.NoError(t, s.Complete(ctx, first.ClientTransferID))
	require.NoError(t, s.TryReserve(ctx, second))
}
