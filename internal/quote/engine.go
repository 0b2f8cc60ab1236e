package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/money"
	"github.com/aristath/stablesats/internal/price"
)

// Engine issues and accepts quotes, wiring the price engine's conversions,
// the event-sourced Store, and the ledger's paired settlement transaction.
type Engine struct {
	price              *price.Engine
	store              *Store
	ledger             *ledger.Ledger
	expirationInterval time.Duration
}

// NewEngine wires the collaborators an Engine needs.
func NewEngine(priceEngine *price.Engine, store *Store, ldg *ledger.Ledger, expirationInterval time.Duration) *Engine {
	return &Engine{price: priceEngine, store: store, ledger: ldg, expirationInterval: expirationInterval}
}

// Issue prices satAmount for direction and immediacy against the current
// book, persists the Initialized event, and returns the new Quote.
func (e *Engine) Issue(direction Direction, immediate bool, satAmount money.Satoshis, correlationID string, now time.Time) (*Quote, error) {
	var cents money.UsdCents
	var err error
	switch direction {
	case BuyCents:
		cents, err = e.price.CentsFromSatsForBuy(satAmount, immediate)
	case SellCents:
		cents, err = e.price.CentsFromSatsForSell(satAmount, immediate)
	default:
		return nil, fmt.Errorf("quote: unknown direction %q", direction)
	}
	if err != nil {
		return nil, fmt.Errorf("issue quote: %w", err)
	}

	id := uuid.NewString()
	payload := InitializedPayload{
		Direction:          direction,
		ImmediateExecution: immediate,
		SatAmount:          satAmount.Decimal(),
		CentAmount:         cents.Decimal(),
		SatsSpread:         decimal.Zero,
		CentsSpread:        decimal.Zero,
		ExpiresAt:          now.Add(e.expirationInterval),
		CorrelationID:      correlationID,
	}
	q := newQuote(id, payload, now)
	if err := e.store.Save(q); err != nil {
		return nil, fmt.Errorf("persist quote: %w", err)
	}
	return q, nil
}

// Accept finalizes a quote: checks the acceptance/expiry preconditions,
// posts the paired user-trade ledger transaction with LedgerTxId = quote
// id, then appends Accepted. The ledger post comes first: if it fails, the
// acceptance event is never persisted and a retry of Accept starts over,
// while a retry that re-posts after a crashed Save is a no-op on the
// ledger side since the transaction is keyed by the quote id. Persisting
// the event first would strand the quote: the IsAccepted check would
// short-circuit every retry before the ledger transaction could ever be
// posted.
func (e *Engine) Accept(ctx context.Context, quoteID string, now time.Time) (*Quote, error) {
	q, err := e.store.Load(quoteID)
	if err != nil {
		return nil, err
	}
	if q.IsAccepted() {
		return nil, ErrQuoteAlreadyAccepted
	}
	if q.IsExpired(now) {
		return nil, ErrQuoteExpired
	}

	var tx ledger.Transaction
	switch q.Direction {
	case BuyCents:
		tx = ledger.UserBuysUsd(q.ID, q.CorrelationID, q.SatAmount.Decimal(), q.CentAmount.Decimal())
	case SellCents:
		tx = ledger.UserSellsUsd(q.ID, q.CorrelationID, q.SatAmount.Decimal(), q.CentAmount.Decimal())
	}
	if err := e.ledger.Post(ctx, tx); err != nil {
		return nil, fmt.Errorf("post quote acceptance ledger tx: %w", err)
	}

	q.recordPending(EventAccepted, now, nil, &AcceptedPayload{At: now})
	if err := e.store.Save(q); err != nil {
		return nil, fmt.Errorf("persist quote acceptance: %w", err)
	}
	return q, nil
}
