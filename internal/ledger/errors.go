package ledger

import "errors"

// Error taxonomy for the ledger component. Duplicate-key errors are
// swallowed for idempotent inits and surfaced everywhere else.
var (
	// ErrUnbalancedTransaction is returned when a transaction's entries do
	// not sum to zero per (currency, layer).
	ErrUnbalancedTransaction = errors.New("ledger: transaction entries do not balance per currency and layer")

	// ErrAccountNotFound is returned when an entry references an account
	// code that hasn't been created.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrDuplicateAccountCode is swallowed by CreateAccount on a second,
	// idempotent call with the same code.
	ErrDuplicateAccountCode = errors.New("ledger: duplicate account code")
)
