package price

import "github.com/shopspring/decimal"

// WalkSatsToCents converts a sat amount to cents by walking levels in the
// order the caller supplies them (best price first), accumulating volume
// until the requested amount is exhausted. If the book runs out of depth,
// the remainder is extrapolated at the deepest available price.
func WalkSatsToCents(levels []Level, sats decimal.Decimal) decimal.Decimal {
	remaining := sats
	total := decimal.Zero
	var deepest decimal.Decimal
	for _, lvl := range levels {
		deepest = lvl.Price
		if !remaining.IsPositive() {
			break
		}
		satsAtLevel := lvl.VolumeCents.Div(lvl.Price)
		if satsAtLevel.GreaterThanOrEqual(remaining) {
			total = total.Add(remaining.Mul(lvl.Price))
			remaining = decimal.Zero
			break
		}
		total = total.Add(lvl.VolumeCents)
		remaining = remaining.Sub(satsAtLevel)
	}
	if remaining.IsPositive() && len(levels) > 0 {
		total = total.Add(remaining.Mul(deepest))
	}
	return total
}

// WalkCentsToSats is the inverse of WalkSatsToCents: converts a cent budget
// to sats by walking levels, extrapolating at the deepest available price
// once the book is exhausted.
func WalkCentsToSats(levels []Level, cents decimal.Decimal) decimal.Decimal {
	remaining := cents
	total := decimal.Zero
	var deepest decimal.Decimal
	for _, lvl := range levels {
		deepest = lvl.Price
		if !remaining.IsPositive() {
			break
		}
		if lvl.VolumeCents.GreaterThanOrEqual(remaining) {
			total = total.Add(remaining.Div(lvl.Price))
			remaining = decimal.Zero
			break
		}
		total = total.Add(lvl.VolumeCents.Div(lvl.Price))
		remaining = remaining.Sub(lvl.VolumeCents)
	}
	if remaining.IsPositive() && len(levels) > 0 {
		total = total.Add(remaining.Div(deepest))
	}
	return total
}

// MidPriceOfOneSat is (best ask + best bid) / 2, the reference price used
// outside of volume-weighted conversions.
func MidPriceOfOneSat(bestAsk, bestBid decimal.Decimal) decimal.Decimal {
	return bestAsk.Add(bestBid).Div(decimal.NewFromInt(2))
}
