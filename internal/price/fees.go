package price

import "github.com/shopspring/decimal"

// FeeCalculator holds the three configured fee rates: a base rate applied
// to every quote, plus an immediate or delayed surcharge depending on
// settlement timing.
type FeeCalculator struct {
	BaseRate      decimal.Decimal
	ImmediateRate decimal.Decimal
	DelayedRate   decimal.Decimal
}

// EffectiveRate is base+immediate or base+delayed.
func (f FeeCalculator) EffectiveRate(immediate bool) decimal.Decimal {
	if immediate {
		return f.BaseRate.Add(f.ImmediateRate)
	}
	return f.BaseRate.Add(f.DelayedRate)
}

var one = decimal.NewFromInt(1)

// IncreaseByFee scales x up by (1+rate): used on the side of a quote that
// must disadvantage the user to stay conservative to the platform.
func IncreaseByFee(x, rate decimal.Decimal) decimal.Decimal {
	return x.Mul(one.Add(rate))
}

// DecreaseByFee scales x down by (1-rate).
func DecreaseByFee(x, rate decimal.Decimal) decimal.Decimal {
	return x.Mul(one.Sub(rate))
}
