package exchange

import "github.com/shopspring/decimal"

// OrderSide is the side of a place_order call.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderState is the lifecycle state of a placed order.
type OrderState string

const (
	OrderLive     OrderState = "live"
	OrderFilled   OrderState = "filled"
	OrderCanceled OrderState = "canceled"
)

// TransferState is the lifecycle state of an internal transfer.
type TransferState string

const (
	TransferPending TransferState = "pending"
	TransferOK      TransferState = "ok"
	TransferFailed  TransferState = "failed"
)

// WithdrawalState is the lifecycle state of an on-chain withdrawal.
type WithdrawalState string

const (
	WithdrawalPending WithdrawalState = "pending"
	WithdrawalSuccess WithdrawalState = "success"
	WithdrawalFailed  WithdrawalState = "failed"
)

// Balance mirrors funding_account_balance/trading_account_balance.
type Balance struct {
	FreeBTC  decimal.Decimal
	UsedBTC  decimal.Decimal
	TotalBTC decimal.Decimal
}

// Position mirrors get_position_in_signed_usd_cents; the sign of UsdCents
// is the position's direction.
type Position struct {
	InstrumentID      string
	UsdCents          decimal.Decimal
	LastPriceUsdCents decimal.Decimal
}

// OrderDetails mirrors order_details.
type OrderDetails struct {
	State    OrderState
	AvgPrice decimal.Decimal
	Fee      decimal.Decimal
	Complete bool
}

// TransferStatus mirrors transfer_state.
type TransferStatus struct {
	State      TransferState
	TransferID string
	ClientID   string
}

// WithdrawalStatus mirrors fetch_withdrawal_by_client_id.
type WithdrawalStatus struct {
	State         WithdrawalState
	TransactionID string
}

// OnchainFees mirrors get_onchain_fees, already clamped to the configured
// bounds.
type OnchainFees struct {
	MinFee      decimal.Decimal
	MaxFee      decimal.Decimal
	MinWithdraw decimal.Decimal
	MaxWithdraw decimal.Decimal
}

// Minimum bounds the adapter clamps get_onchain_fees to.
var (
	MinFeeBTC      = decimal.RequireFromString("0.0002")
	MinWithdrawBTC = decimal.RequireFromString("0.001")
)
