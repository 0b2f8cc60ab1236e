package quote

import "errors"

// Error taxonomy for the quote component: surfaced to the caller, never
// accompanied by a state mutation.
var (
	ErrQuoteAlreadyAccepted = errors.New("quote: already accepted")
	ErrQuoteExpired         = errors.New("quote: expired")
	ErrQuoteNotFound        = errors.New("quote: not found")
)
