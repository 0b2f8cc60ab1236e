// Package hedging implements the pure hedge and funding decision
// functions: deterministic functions of a small observation vector, with
// no I/O and no blocking. Everything stateful (reading balances, placing
// orders) lives in the callers; equal inputs always produce equal
// outputs.
package hedging

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ContractSizeCents is the fixed USD notional of one perpetual-swap
// contract.
var ContractSizeCents = decimal.NewFromInt(10_000)

// HedgeActionKind names the shape of a HedgeAction.
type HedgeActionKind string

const (
	HedgeDoNothing     HedgeActionKind = "DoNothing"
	HedgeClosePosition HedgeActionKind = "ClosePosition"
	HedgeSell          HedgeActionKind = "Sell"
	HedgeBuy           HedgeActionKind = "Buy"
)

// HedgeAction is the output of OkexHedgeAdjustment. Contracts is only
// meaningful for Sell/Buy.
type HedgeAction struct {
	Kind      HedgeActionKind
	Contracts int64
}

func (a HedgeAction) String() string {
	switch a.Kind {
	case HedgeSell, HedgeBuy:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Contracts)
	default:
		return string(a.Kind)
	}
}

// HedgeThresholds are the configured shorting ratios: the bound pair says
// when to act, the safebound pair says where to land.
type HedgeThresholds struct {
	MinLiabilityCents  decimal.Decimal
	LowBoundRatio      decimal.Decimal
	LowSafeboundRatio  decimal.Decimal
	HighBoundRatio     decimal.Decimal
	HighSafeboundRatio decimal.Decimal
}

// OkexHedgeAdjustment decides how to adjust the short position so exposure
// tracks liability. absLiabilityCents must be >= 0; signedExposureCents is
// negative for a short position.
func OkexHedgeAdjustment(absLiabilityCents, signedExposureCents decimal.Decimal, t HedgeThresholds) HedgeAction {
	if absLiabilityCents.LessThan(t.MinLiabilityCents) {
		if signedExposureCents.IsZero() {
			return HedgeAction{Kind: HedgeDoNothing}
		}
		return HedgeAction{Kind: HedgeClosePosition}
	}

	r := signedExposureCents.Div(absLiabilityCents.Neg())
	absExposure := signedExposureCents.Abs()

	switch {
	case r.IsNegative():
		target := absLiabilityCents.Mul(t.LowSafeboundRatio)
		n := roundToContracts(target.Add(absExposure).Abs())
		if n > 0 {
			return HedgeAction{Kind: HedgeSell, Contracts: n}
		}
		return HedgeAction{Kind: HedgeDoNothing}

	case r.LessThan(t.LowBoundRatio):
		target := absLiabilityCents.Mul(t.LowSafeboundRatio)
		n := roundToContracts(target.Sub(absExposure).Abs())
		if n > 0 {
			return HedgeAction{Kind: HedgeSell, Contracts: n}
		}
		return HedgeAction{Kind: HedgeDoNothing}

	case r.GreaterThan(t.HighBoundRatio):
		target := absLiabilityCents.Mul(t.HighSafeboundRatio)
		n := roundToContracts(absExposure.Sub(target).Abs())
		if n > 0 {
			return HedgeAction{Kind: HedgeBuy, Contracts: n}
		}
		return HedgeAction{Kind: HedgeDoNothing}

	default:
		return HedgeAction{Kind: HedgeDoNothing}
	}
}

func roundToContracts(cents decimal.Decimal) int64 {
	return cents.Div(ContractSizeCents).Round(0).IntPart()
}
