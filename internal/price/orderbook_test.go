package price_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/price"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// TestOrderBookMergeProperty checks the merge contract: after applying
// Snapshot S then Update U, the cached book equals S with U's nonzero
// levels inserted/replaced and zero-qty levels removed, with ts = U.ts.
func TestOrderBookMergeProperty(t *testing.T) {
	cache := price.NewBookCache()
	t0 := time.Now()
	cache.ApplySnapshot(price.Snapshot{
		Timestamp: t0,
		Asks: []price.Level{
			{Price: d("100"), VolumeCents: d("10")},
			{Price: d("101"), VolumeCents: d("20")},
		},
		Bids: []price.Level{
			{Price: d("99"), VolumeCents: d("10")},
		},
	})

	t1 := t0.Add(time.Second)
	err := cache.ApplyUpdate(price.Update{
		Timestamp: t1,
		Asks: []price.Level{
			{Price: d("100"), VolumeCents: d("0")},  // delete
			{Price: d("102"), VolumeCents: d("30")}, // insert
		},
		Bids: []price.Level{
			{Price: d("99"), VolumeCents: d("15")}, // replace
		},
	})
	require.NoError(t, err)

	book := cache.Current()
	require.NotNil(t, book)
	assert.True(t, book.Timestamp.Equal(t1))

	asks := book.Asks()
	require.Len(t, asks, 2)
	assert.True(t, asks[0].Price.Equal(d("101")))
	assert.True(t, asks[1].Price.Equal(d("102")))

	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].VolumeCents.Equal(d("15")))
}

func TestUpdateBeforeSnapshotErrors(t *testing.T) {
	cache := price.NewBookCache()
	err := cache.ApplyUpdate(price.Update{Timestamp: time.Now()})
	assert.ErrorIs(t, err, price.ErrNoSnapshot)
}

func TestStaleUpdateDiscarded(t *testing.T) {
	cache := price.NewBookCache()
	t0 := time.Now()
	cache.ApplySnapshot(price.Snapshot{Timestamp: t0, Asks: []price.Level{{Price: d("1"), VolumeCents: d("1")}}})

	err := cache.ApplyUpdate(price.Update{Timestamp: t0.Add(-time.Second), Asks: []price.Level{{Price: d("2"), VolumeCents: d("2")}}})
	require.NoError(t, err)

	book := cache.Current()
	assert.True(t, book.Timestamp.Equal(t0))
	assert.Len(t, book.Asks(), 1)
}

func TestChecksumMismatchDiscardsCache(t *testing.T) {
	cache := price.NewBookCache()
	cache.ApplySnapshot(price.Snapshot{Timestamp: time.Now(), Asks: []price.Level{{Price: d("1"), VolumeCents: d("1")}}})

	err := cache.ApplyUpdate(price.Update{
		Timestamp: time.Now().Add(time.Second),
		Checksum:  "not-a-real-checksum",
		Asks:      []price.Level{{Price: d("2"), VolumeCents: d("2")}},
	})
	assert.ErrorIs(t, err, price.ErrChecksumMismatch)
	assert.Nil(t, cache.Current())
}
