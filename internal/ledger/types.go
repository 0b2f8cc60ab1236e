package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is one side of a double-entry posting.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Layer distinguishes settled balances from funds merely encumbered by an
// in-flight quote.
type Layer string

const (
	Settled    Layer = "settled"
	Encumbered Layer = "encumbered"
)

// Entry is one leg of a Transaction: (transaction, account, currency,
// direction, layer, units).
type Entry struct {
	AccountCode string
	Currency    string
	Direction   Direction
	Layer       Layer
	Units       decimal.Decimal
}

// Transaction is a set of entries posted atomically under a unique TxID.
// Replaying Post with the same TxID is a no-op.
type Transaction struct {
	TxID          string
	Journal       string
	Template      string
	EffectiveDate time.Time
	CorrelationID string
	Metadata      map[string]any
	Entries       []Entry
}

// Account is a named ledger account with a fixed normal balance side.
type Account struct {
	ID                string
	Code              string
	Name              string
	NormalBalanceType Direction
}

// BalanceUpdated is published on the balance event stream after a
// transaction posts, one per (account, currency, layer) it touched.
type BalanceUpdated struct {
	TxID          string
	AccountCode   string
	Currency      string
	Layer         Layer
	SettledDebit  decimal.Decimal
	SettledCredit decimal.Decimal
	Balance       decimal.Decimal
}

// Well-known journals, exactly one per logical domain.
const (
	JournalStablesats       = "stablesats"
	JournalExchangePosition = "exchange_positions"
	JournalQuotes           = "quotes"
)

// Well-known account codes referenced by the transaction templates.
const (
	AccountUserLiability        = "stablesats_liability"
	AccountWalletOmnibus        = "btc_wallet_omnibus"
	AccountExternalOmnibus      = "btc_external_omnibus"
	AccountExchangePositionOmni = "exchange_position_omnibus"
	AccountOkexPosition         = "okex_position"
	AccountOkexAllocation       = "okex_allocation"
)
