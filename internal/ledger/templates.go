package ledger

import "github.com/shopspring/decimal"

// The seven named transaction templates. Each builder takes
// the amounts and identifiers a caller already has in hand and returns a
// fully-formed Transaction ready for Post. Keeping the entry lists in one
// place means every caller gets the same account wiring and the same
// balance invariant for free.

const (
	TemplateUserBuysUsd              = "UserBuysUsd"
	TemplateUserSellsUsd             = "UserSellsUsd"
	TemplateQuoteBuyUsd              = "QuoteBuyUsd"
	TemplateRevertUserBuysUsd        = "RevertUserBuysUsd"
	TemplateRevertUserSellsUsd       = "RevertUserSellsUsd"
	TemplateAdjustExchangePosition   = "AdjustExchangePosition"
	TemplateAdjustExchangeAllocation = "AdjustExchangeAllocation"
)

// UserBuysUsd credits the user's USD liability and moves the matching BTC
// from the external omnibus into the wallet omnibus, settled layer.
func UserBuysUsd(txID, correlationID string, sats, cents decimal.Decimal) Transaction {
	return Transaction{
		TxID:          txID,
		Journal:       JournalStablesats,
		Template:      TemplateUserBuysUsd,
		CorrelationID: correlationID,
		Entries: []Entry{
			{AccountCode: AccountWalletOmnibus, Currency: "BTC", Direction: Credit, Layer: Settled, Units: sats},
			{AccountCode: AccountExternalOmnibus, Currency: "BTC", Direction: Debit, Layer: Settled, Units: sats},
			{AccountCode: AccountUserLiability, Currency: "USD", Direction: Credit, Layer: Settled, Units: cents},
			{AccountCode: AccountWalletOmnibus, Currency: "USD", Direction: Debit, Layer: Settled, Units: cents},
		},
	}
}

// UserSellsUsd is the mirror of UserBuysUsd: it debits the user's USD
// liability and releases BTC from the wallet omnibus back out.
func UserSellsUsd(txID, correlationID string, sats, cents decimal.Decimal) Transaction {
	return Transaction{
		TxID:          txID,
		Journal:       JournalStablesats,
		Template:      TemplateUserSellsUsd,
		CorrelationID: correlationID,
		Entries: []Entry{
			{AccountCode: AccountExternalOmnibus, Currency: "BTC", Direction: Credit, Layer: Settled, Units: sats},
			{AccountCode: AccountWalletOmnibus, Currency: "BTC", Direction: Debit, Layer: Settled, Units: sats},
			{AccountCode: AccountWalletOmnibus, Currency: "USD", Direction: Credit, Layer: Settled, Units: cents},
			{AccountCode: AccountUserLiability, Currency: "USD", Direction: Debit, Layer: Settled, Units: cents},
		},
	}
}

// QuoteBuyUsd reserves inventory for an accepted quote before settlement:
// the same entries as UserBuysUsd but posted to the encumbered layer so they
// never touch the settled balance used for hedge/funding decisions.
func QuoteBuyUsd(txID, correlationID string, sats, cents decimal.Decimal) Transaction {
	return Transaction{
		TxID:          txID,
		Journal:       JournalQuotes,
		Template:      TemplateQuoteBuyUsd,
		CorrelationID: correlationID,
		Entries: []Entry{
			{AccountCode: AccountWalletOmnibus, Currency: "BTC", Direction: Credit, Layer: Encumbered, Units: sats},
			{AccountCode: AccountExternalOmnibus, Currency: "BTC", Direction: Debit, Layer: Encumbered, Units: sats},
			{AccountCode: AccountUserLiability, Currency: "USD", Direction: Credit, Layer: Encumbered, Units: cents},
			{AccountCode: AccountWalletOmnibus, Currency: "USD", Direction: Debit, Layer: Encumbered, Units: cents},
		},
	}
}

// RevertUserBuysUsd produces the exact compensating entry for a prior
// UserBuysUsd transaction: same accounts, negated units, carrying the
// original transaction's id as correlation_id.
func RevertUserBuysUsd(txID, originalTxID string, sats, cents decimal.Decimal) Transaction {
	orig := UserBuysUsd(txID, originalTxID, sats, cents)
	orig.Template = TemplateRevertUserBuysUsd
	negate(orig.Entries)
	return orig
}

// RevertUserSellsUsd is the compensating entry for UserSellsUsd.
func RevertUserSellsUsd(txID, originalTxID string, sats, cents decimal.Decimal) Transaction {
	orig := UserSellsUsd(txID, originalTxID, sats, cents)
	orig.Template = TemplateRevertUserSellsUsd
	negate(orig.Entries)
	return orig
}

func negate(entries []Entry) {
	for i := range entries {
		if entries[i].Direction == Debit {
			entries[i].Direction = Credit
		} else {
			entries[i].Direction = Debit
		}
	}
}

// AdjustExchangePosition mirrors an observed exchange position change into
// the ledger: a settled USD move between the exchange position omnibus and
// the named exchange's position account. deltaCents is signed from the
// exchange's perspective; a positive delta means the exchange position grew.
func AdjustExchangePosition(txID, correlationID, exchangeAccountCode string, deltaCents decimal.Decimal) Transaction {
	units := deltaCents.Abs()
	tx := Transaction{
		TxID:          txID,
		Journal:       JournalExchangePosition,
		Template:      TemplateAdjustExchangePosition,
		CorrelationID: correlationID,
	}
	if deltaCents.IsNegative() {
		tx.Entries = []Entry{
			{AccountCode: AccountExchangePositionOmni, Currency: "USD", Direction: Credit, Layer: Settled, Units: units},
			{AccountCode: exchangeAccountCode, Currency: "USD", Direction: Debit, Layer: Settled, Units: units},
		}
	} else {
		tx.Entries = []Entry{
			{AccountCode: exchangeAccountCode, Currency: "USD", Direction: Credit, Layer: Settled, Units: units},
			{AccountCode: AccountExchangePositionOmni, Currency: "USD", Direction: Debit, Layer: Settled, Units: units},
		}
	}
	return tx
}

// AdjustExchangeAllocation rebalances which exchange bears which slice of
// the user liability: a settled USD move between the stablesats liability
// account and a named exchange allocation account (e.g. okex_allocation),
// leaving room for additional exchanges.
func AdjustExchangeAllocation(txID, correlationID, allocationAccountCode string, deltaCents decimal.Decimal) Transaction {
	units := deltaCents.Abs()
	tx := Transaction{
		TxID:          txID,
		Journal:       JournalStablesats,
		Template:      TemplateAdjustExchangeAllocation,
		CorrelationID: correlationID,
	}
	if deltaCents.IsNegative() {
		tx.Entries = []Entry{
			{AccountCode: allocationAccountCode, Currency: "USD", Direction: Credit, Layer: Settled, Units: units},
			{AccountCode: AccountUserLiability, Currency: "USD", Direction: Debit, Layer: Settled, Units: units},
		}
	} else {
		tx.Entries = []Entry{
			{AccountCode: AccountUserLiability, Currency: "USD", Direction: Credit, Layer: Settled, Units: units},
			{AccountCode: allocationAccountCode, Currency: "USD", Direction: Debit, Layer: Settled, Units: units},
		}
	}
	return tx
}
