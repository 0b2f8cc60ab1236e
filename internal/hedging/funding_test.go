package hedging_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/hedging"
)

func fundingThresholds() hedging.FundingThresholds {
	return hedging.FundingThresholds{
		MinLiabilityCents: decimal.NewFromInt(5_000),
		MinTransferCents:  decimal.NewFromInt(10_000),
		MinFundingBtc:     decimal.RequireFromString("0.01"),
		LowBoundLev:       decimal.RequireFromString("0.05"),
		LowSafeboundLev:   decimal.RequireFromString("0.04"),
		HighBoundLev:      decimal.RequireFromString("0.95"),
		HighSafeboundLev:  decimal.RequireFromString("0.90"),
		HighBufferPct:     decimal.RequireFromString("0.9"),
	}
}

func TestOkexFundingAdjustment_ZeroPriceDoesNothing(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(100_000), decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
		fundingThresholds(),
	)
	assert.Equal(t, hedging.FundingDoNothing, a.Kind)
}

func TestOkexFundingAdjustment_ColdStartDepositsFromChainWhenFundingEmpty(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(900_000), decimal.Zero, decimal.Zero, decimal.NewFromInt(1), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingOnchainDeposit, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("1000000.01")), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_ColdStartTransfersFromFundingWallet(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(900_000), decimal.Zero, decimal.Zero, decimal.NewFromInt(1), decimal.NewFromInt(500_000),
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingTransferFundToTrading, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.NewFromInt(500_000)), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_NoExposureWithAdequateCollateralDoesNothing(t *testing.T) {
	// Liability fully collateralized at the high safebound leverage and the
	// funding wallet already sits at its floor: nothing to move.
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(10_000),
		decimal.Zero,
		decimal.RequireFromString("11111.111111111111111111"),
		decimal.NewFromInt(1),
		decimal.RequireFromString("0.01"),
		fundingThresholds(),
	)
	assert.Equal(t, hedging.FundingDoNothing, a.Kind)
}

func TestOkexFundingAdjustment_WindDownTransfersCollateralBack(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(5_000), decimal.Zero, decimal.NewFromInt(50), decimal.NewFromInt(1), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingTransferTradingToFund, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.NewFromInt(50)), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_WindDownWithdrawsExcessFunding(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(5_000), decimal.Zero, decimal.Zero, decimal.NewFromInt(1), decimal.RequireFromString("0.05"),
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingOnchainWithdraw, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("0.04")), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_UnderCollateralizedWithOpenExposureDeposits(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(900_000), decimal.NewFromInt(-500_000), decimal.NewFromInt(100_000), decimal.NewFromInt(1), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingOnchainDeposit, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("900000.01")), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_OverCollateralizedTransfersOut(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.Zero, decimal.NewFromInt(-1_000), decimal.NewFromInt(100_000), decimal.NewFromInt(1), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingTransferTradingToFund, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.NewFromInt(75_000)), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_LiquidationRiskDeposits(t *testing.T) {
	a := hedging.OkexFundingAdjustment(
		decimal.Zero, decimal.NewFromInt(-94_500), decimal.NewFromInt(100_000), decimal.NewFromInt(1), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingOnchainDeposit, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("5000.01")), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_ColdStartDepositRoundsToSatPrecision(t *testing.T) {
	// 900_000¢ at 7¢/BTC gives a repeating-decimal collateral target; the
	// emitted amount must be quantized to whole satoshis before it reaches
	// an exchange call.
	a := hedging.OkexFundingAdjustment(
		decimal.NewFromInt(900_000), decimal.Zero, decimal.Zero, decimal.NewFromInt(7), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingOnchainDeposit, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("142857.15285714")), "got %s", a.AmountBtc)
}

func TestOkexFundingAdjustment_OverCollateralizedFloorsToSatPrecision(t *testing.T) {
	// 1_000¢ exposure at 3¢/BTC makes the retained-collateral target a
	// repeating decimal; the transfer-out amount floors at satoshi
	// precision rather than rounding up past what the account holds.
	a := hedging.OkexFundingAdjustment(
		decimal.Zero, decimal.NewFromInt(-1_000), decimal.NewFromInt(100_000), decimal.NewFromInt(3), decimal.Zero,
		fundingThresholds(),
	)
	require.Equal(t, hedging.FundingTransferTradingToFund, a.Kind)
	assert.True(t, a.AmountBtc.Equal(decimal.RequireFromString("91666.66666666")), "got %s", a.AmountBtc)
}

func TestFundingAction_String(t *testing.T) {
	assert.Equal(t, "DoNothing", hedging.FundingAction{Kind: hedging.FundingDoNothing}.String())
	assert.Equal(t, "OnchainDeposit(0.01000000)", hedging.FundingAction{
		Kind: hedging.FundingOnchainDeposit, AmountBtc: decimal.RequireFromString("0.01"),
	}.String())
}
