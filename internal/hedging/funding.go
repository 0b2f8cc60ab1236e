package hedging

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FundingActionKind names the shape of a FundingAction.
type FundingActionKind string

const (
	FundingDoNothing             FundingActionKind = "DoNothing"
	FundingTransferTradingToFund FundingActionKind = "TransferTradingToFunding"
	FundingTransferFundToTrading FundingActionKind = "TransferFundingToTrading"
	FundingOnchainDeposit        FundingActionKind = "OnchainDeposit"
	FundingOnchainWithdraw       FundingActionKind = "OnchainWithdraw"
)

// FundingAction is the output of OkexFundingAdjustment. AmountBtc is only
// meaningful for the four non-DoNothing kinds.
type FundingAction struct {
	Kind      FundingActionKind
	AmountBtc decimal.Decimal
}

func (a FundingAction) String() string {
	if a.Kind == FundingDoNothing {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.AmountBtc.StringFixed(8))
}

// FundingThresholds are the configured funding values: minimum transfer
// and funding-balance floors, the leverage bound/safebound pairs, the
// liquidation buffer percentage, and the minimum liability threshold
// shared with the hedge decision.
type FundingThresholds struct {
	MinLiabilityCents decimal.Decimal
	MinTransferCents  decimal.Decimal
	MinFundingBtc     decimal.Decimal
	LowBoundLev       decimal.Decimal
	LowSafeboundLev   decimal.Decimal
	HighBoundLev      decimal.Decimal
	HighSafeboundLev  decimal.Decimal
	HighBufferPct     decimal.Decimal
}

var satsPerBtc = decimal.NewFromInt(100_000_000)

// roundBtc rounds x to satoshi precision.
func roundBtc(x decimal.Decimal) decimal.Decimal {
	return x.Mul(satsPerBtc).Round(0).Div(satsPerBtc)
}

// floorBtc floors x to satoshi precision.
func floorBtc(x decimal.Decimal) decimal.Decimal {
	return x.Mul(satsPerBtc).Truncate(0).Div(satsPerBtc)
}

// roundToContractCents rounds absLiabilityCents to the nearest whole
// contract, the same notional granularity the hedge decision trades in.
func roundToContractCents(absLiabilityCents decimal.Decimal) decimal.Decimal {
	return absLiabilityCents.Div(ContractSizeCents).Round(0).Mul(ContractSizeCents)
}

// OkexFundingAdjustment decides how collateral should move between the
// funding wallet, the trading account, and on-chain so the short position
// stays inside its leverage bounds. First matching branch wins.
func OkexFundingAdjustment(
	absLiabilityCents, signedExposureCents, totalCollateralBtc, btcPriceCents, fundingBalanceBtc decimal.Decimal,
	t FundingThresholds,
) FundingAction {
	if btcPriceCents.IsZero() {
		return FundingAction{Kind: FundingDoNothing}
	}

	absLiabilityBtc := roundToContractCents(absLiabilityCents).Div(btcPriceCents)
	absExposureBtc := signedExposureCents.Abs().Div(btcPriceCents)
	liabilityAboveMin := absLiabilityCents.GreaterThan(t.MinLiabilityCents)

	// With no open hedge position, collateral movements are driven entirely
	// by the cold-start/wind-down branches; there is nothing for the
	// exposure-relative under/over-collateralized or liquidation-risk
	// checks below to react to, so an untouched position with adequately
	// sized collateral is left alone.
	if signedExposureCents.IsZero() {
		switch {
		case totalCollateralBtc.IsZero() && liabilityAboveMin && fundingBalanceBtc.IsZero():
			target := absLiabilityBtc.Div(t.HighSafeboundLev)
			return calculateDeposit(roundBtc(target.Sub(totalCollateralBtc)), t.MinFundingBtc)

		case totalCollateralBtc.IsZero() && liabilityAboveMin && fundingBalanceBtc.IsPositive():
			target := absLiabilityBtc.Div(t.HighSafeboundLev)
			return calculateTransferIn(fundingBalanceBtc, roundBtc(target.Sub(totalCollateralBtc)))

		case absLiabilityCents.LessThan(t.MinTransferCents) && totalCollateralBtc.IsPositive():
			return calculateTransferOut(floorBtc(totalCollateralBtc))

		case absLiabilityCents.LessThan(t.MinTransferCents) &&
			totalCollateralBtc.IsZero() && fundingBalanceBtc.GreaterThan(t.MinFundingBtc):
			return calculateWithdraw(fundingBalanceBtc, t.MinFundingBtc)

		default:
			return FundingAction{Kind: FundingDoNothing}
		}
	}

	switch {
	// under-collateralized
	case liabilityAboveMin && absLiabilityBtc.GreaterThan(totalCollateralBtc.Mul(t.HighBoundLev)):
		target := absLiabilityBtc.Div(t.HighSafeboundLev)
		return calculateTransferInDeposit(fundingBalanceBtc, roundBtc(target.Sub(totalCollateralBtc)), t.MinFundingBtc)

	// over-collateralized
	case absExposureBtc.LessThan(totalCollateralBtc.Mul(t.LowBoundLev)):
		target := absExposureBtc.Div(t.LowSafeboundLev)
		return calculateTransferOutWithdraw(fundingBalanceBtc, floorBtc(totalCollateralBtc.Sub(target)), t.MinFundingBtc)

	// liquidation-risk
	case absExposureBtc.GreaterThan(totalCollateralBtc.Mul(t.HighBufferPct).Mul(t.HighBoundLev)):
		target := absExposureBtc.Div(t.HighSafeboundLev)
		return calculateTransferInDeposit(fundingBalanceBtc, roundBtc(target.Sub(totalCollateralBtc)), t.MinFundingBtc)

	default:
		return FundingAction{Kind: FundingDoNothing}
	}
}

// calculateTransferInDeposit is the shared emission helper for
// under-collateralized and liquidation-risk: prefer pulling from the
// funding wallet before touching the chain. It emits one action: a transfer
// of min(funding, amt) when the funding wallet holds anything, otherwise an
// on-chain deposit of amt plus a refill of the funding wallet to minFund.
func calculateTransferInDeposit(funding, amt, minFund decimal.Decimal) FundingAction {
	if amt.IsNegative() || amt.IsZero() {
		return FundingAction{Kind: FundingDoNothing}
	}
	internal := decimal.Min(funding, amt)
	refill := decimal.Max(decimal.Zero, minFund.Sub(funding.Sub(internal)))
	external := amt.Sub(internal).Add(refill)

	if internal.IsPositive() {
		return FundingAction{Kind: FundingTransferFundToTrading, AmountBtc: internal}
	}
	if external.IsPositive() {
		return FundingAction{Kind: FundingOnchainDeposit, AmountBtc: external}
	}
	return FundingAction{Kind: FundingDoNothing}
}

// calculateTransferOutWithdraw is the shared emission helper for
// over-collateralized: move collateral back to the funding wallet. It emits
// one action; since amt is positive past the guard, that is always the
// transfer, and the on-chain withdraw leg is not emitted here.
func calculateTransferOutWithdraw(funding, amt, minFund decimal.Decimal) FundingAction {
	if amt.IsNegative() || amt.IsZero() {
		return FundingAction{Kind: FundingDoNothing}
	}
	internal := amt
	external := decimal.Max(decimal.Zero, amt.Add(funding).Sub(minFund))

	if internal.IsPositive() {
		return FundingAction{Kind: FundingTransferTradingToFund, AmountBtc: internal}
	}
	if external.IsPositive() {
		return FundingAction{Kind: FundingOnchainWithdraw, AmountBtc: external}
	}
	return FundingAction{Kind: FundingDoNothing}
}

// calculateDeposit is the cold-start single-leg variant: the funding wallet
// is empty, so the whole target, plus the wallet's own minimum balance, must
// come from on-chain.
func calculateDeposit(amt, minFund decimal.Decimal) FundingAction {
	total := amt.Add(minFund)
	if total.IsPositive() {
		return FundingAction{Kind: FundingOnchainDeposit, AmountBtc: total}
	}
	return FundingAction{Kind: FundingDoNothing}
}

// calculateTransferIn is the cold-start single-leg variant when the funding
// wallet holds a positive balance: it transfers min(funding, amt) and
// deposits nothing on-chain for any shortfall.
func calculateTransferIn(funding, amt decimal.Decimal) FundingAction {
	if amt.IsNegative() || amt.IsZero() {
		return FundingAction{Kind: FundingDoNothing}
	}
	internal := decimal.Min(funding, amt)
	if internal.IsPositive() {
		return FundingAction{Kind: FundingTransferFundToTrading, AmountBtc: internal}
	}
	return FundingAction{Kind: FundingDoNothing}
}

// calculateWithdraw is the wind-down single-leg variant: no trading
// collateral left, so drain the funding wallet down to minFund on-chain.
func calculateWithdraw(funding, minFund decimal.Decimal) FundingAction {
	amt := funding.Sub(minFund)
	if amt.IsPositive() {
		return FundingAction{Kind: FundingOnchainWithdraw, AmountBtc: amt}
	}
	return FundingAction{Kind: FundingDoNothing}
}

// calculateTransferOut is the wind-down-transfer single-leg variant: move
// all trading collateral back to the funding wallet.
func calculateTransferOut(amt decimal.Decimal) FundingAction {
	if amt.IsPositive() {
		return FundingAction{Kind: FundingTransferTradingToFund, AmountBtc: amt}
	}
	return FundingAction{Kind: FundingDoNothing}
}
