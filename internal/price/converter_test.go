package price_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/stablesats/internal/price"
)

func TestWalkSatsToCentsAcrossMultipleLevels(t *testing.T) {
	levels := []price.Level{
		{Price: d("1"), VolumeCents: d("100")}, // absorbs 100 sats
		{Price: d("2"), VolumeCents: d("200")}, // absorbs 100 sats at price 2
	}
	got := price.WalkSatsToCents(levels, d("150"))
	// 100 sats at price 1 = 100 cents, remaining 50 sats at price 2 = 100 cents.
	assert.True(t, got.Equal(d("200")), "got %s", got)
}

func TestWalkSatsToCentsExtrapolatesAtDeepestPrice(t *testing.T) {
	levels := []price.Level{
		{Price: d("1"), VolumeCents: d("100")},
	}
	got := price.WalkSatsToCents(levels, d("500"))
	// 100 sats covered at price 1 (100 cents), remaining 400 sats extrapolated at price 1.
	assert.True(t, got.Equal(d("500")), "got %s", got)
}

func TestWalkCentsToSatsAcrossMultipleLevels(t *testing.T) {
	levels := []price.Level{
		{Price: d("1"), VolumeCents: d("100")},
		{Price: d("2"), VolumeCents: d("200")},
	}
	got := price.WalkCentsToSats(levels, d("150"))
	// 100 cents at price 1 = 100 sats, remaining 50 cents at price 2 = 25 sats.
	assert.True(t, got.Equal(d("125")), "got %s", got)
}

func TestMidPriceOfOneSat(t *testing.T) {
	got := price.MidPriceOfOneSat(d("0.02"), d("0.01"))
	assert.True(t, got.Equal(d("0.015")), "got %s", got)
}
