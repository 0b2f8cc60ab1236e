package price_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/money"
	"github.com/aristath/stablesats/internal/price"
)

// newQuoteScenarioBook builds a single-level book with ask=0.01 and
// bid=0.001 (cents per sat), deep enough to absorb the
// whole 100_000_000-sat conversion at one level so the walker never needs
// to extrapolate.
func newQuoteScenarioBook(t *testing.T) *price.BookCache {
	t.Helper()
	cache := price.NewBookCache()
	ask := decimal.RequireFromString("0.01")
	bid := decimal.RequireFromString("0.001")
	sats := decimal.NewFromInt(1_000_000_000)
	cache.ApplySnapshot(price.Snapshot{
		Timestamp: time.Now(),
		Asks:      []price.Level{{Price: ask, VolumeCents: sats.Mul(ask)}},
		Bids:      []price.Level{{Price: bid, VolumeCents: sats.Mul(bid)}},
	})
	return cache
}

func quoteScenarioFees() price.FeeCalculator {
	return price.FeeCalculator{
		BaseRate:      decimal.RequireFromString("0.001"),
		ImmediateRate: decimal.RequireFromString("0.01"),
		DelayedRate:   decimal.RequireFromString("0.1"),
	}
}

func TestCentsFromSatsForBuyImmediate(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	got, err := e.CentsFromSatsForBuy(money.NewSatoshis(100_000_000), true)
	require.NoError(t, err)
	assert.Equal(t, money.NewUsdCents(98_900).String(), got.String())
}

func TestCentsFromSatsForBuyDelayed(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	got, err := e.CentsFromSatsForBuy(money.NewSatoshis(100_000_000), false)
	require.NoError(t, err)
	assert.Equal(t, money.NewUsdCents(89_900).String(), got.String())
}

func TestCentsFromSatsForSellImmediate(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	got, err := e.CentsFromSatsForSell(money.NewSatoshis(100_000_000), true)
	require.NoError(t, err)
	assert.Equal(t, money.NewUsdCents(1_011_000).String(), got.String())
}

func TestSatsFromCentsForBuyImmediate(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	got, err := e.SatsFromCentsForBuy(money.NewUsdCents(98_900), true)
	require.NoError(t, err)
	// 98_900¢ at bid 0.001 = 98_900_000 sats, increased by 1.1% and ceiled:
	// the buyer always pays at least the raw conversion.
	assert.Equal(t, money.NewSatoshis(99_987_900).String(), got.String())
}

func TestSatsFromCentsForSellImmediate(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	got, err := e.SatsFromCentsForSell(money.NewUsdCents(1_011_000), true)
	require.NoError(t, err)
	// 1_011_000¢ at ask 0.01 = 101_100_000 sats, decreased by 1.1% and
	// floored: the seller always receives at most the raw conversion.
	assert.Equal(t, money.NewSatoshis(99_987_900).String(), got.String())
}

// TestQuoteMonotonicity: for a fixed price snapshot, buy-delayed <=
// buy-immediate <= sell-immediate <= sell-delayed, for the same sat
// amount. Fees always widen in the user-disadvantaging direction.
func TestQuoteMonotonicity(t *testing.T) {
	e := price.NewEngine(newQuoteScenarioBook(t), quoteScenarioFees())
	sats := money.NewSatoshis(100_000_000)

	buyDelayed, err := e.CentsFromSatsForBuy(sats, false)
	require.NoError(t, err)
	buyImmediate, err := e.CentsFromSatsForBuy(sats, true)
	require.NoError(t, err)
	sellImmediate, err := e.CentsFromSatsForSell(sats, true)
	require.NoError(t, err)
	sellDelayed, err := e.CentsFromSatsForSell(sats, false)
	require.NoError(t, err)

	assert.True(t, buyDelayed.Cmp(buyImmediate) <= 0)
	assert.True(t, buyImmediate.Cmp(sellImmediate) <= 0)
	assert.True(t, sellImmediate.Cmp(sellDelayed) <= 0)
}

func TestEngineErrorsWithoutCachedBook(t *testing.T) {
	e := price.NewEngine(price.NewBookCache(), quoteScenarioFees())
	_, err := e.CentsFromSatsForBuy(money.NewSatoshis(1000), true)
	assert.ErrorIs(t, err, price.ErrEmptyBook)
}
