// Package quote implements the event-sourced quote entity: issue a
// price-locked quote, accept it once before expiry, and post the paired
// ledger transaction idempotently keyed by the quote id.
//
// All state derives from the event log; rebuilding a quote folds its
// events in sequence order.
package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/money"
)

// Direction is which side of USD the user is trading.
type Direction string

const (
	BuyCents  Direction = "buy_cents"
	SellCents Direction = "sell_cents"
)

// EventType names a persisted quote event.
type EventType string

const (
	EventInitialized EventType = "Initialized"
	EventAccepted    EventType = "Accepted"
)

// InitializedPayload fills every field a Quote needs except acceptance.
type InitializedPayload struct {
	Direction          Direction
	ImmediateExecution bool
	SatAmount          decimal.Decimal
	CentAmount         decimal.Decimal
	SatsSpread         decimal.Decimal
	CentsSpread        decimal.Decimal
	ExpiresAt          time.Time
	CorrelationID      string
}

// AcceptedPayload records when a quote was accepted.
type AcceptedPayload struct {
	At time.Time
}

// Event is one entry in a quote's append-only event log.
type Event struct {
	Sequence uint64
	Type     EventType
	At       time.Time
	Init     *InitializedPayload
	Accepted *AcceptedPayload
}

// Quote is the folded state of a quote's event log. All fields
// are derived; never mutate a Quote directly outside of applyEvent.
type Quote struct {
	ID                 string
	Direction          Direction
	ImmediateExecution bool
	SatAmount          money.Satoshis
	CentAmount         money.UsdCents
	SatsSpread         decimal.Decimal
	CentsSpread        decimal.Decimal
	ExpiresAt          time.Time
	CorrelationID      string
	accepted           bool
	acceptedAt         time.Time
	nextSequence       uint64
	pendingEvents      []Event // events not yet persisted
}

// IsAccepted reports whether an Accepted event has been folded in.
func (q *Quote) IsAccepted() bool { return q.accepted }

// IsExpired reports whether now is past the quote's expiry.
func (q *Quote) IsExpired(now time.Time) bool { return now.After(q.ExpiresAt) }

func newQuote(id string, p InitializedPayload, at time.Time) *Quote {
	q := &Quote{ID: id}
	q.recordPending(EventInitialized, at, &p, nil)
	return q
}

func (q *Quote) applyEvent(ev Event) {
	switch ev.Type {
	case EventInitialized:
		p := ev.Init
		q.Direction = p.Direction
		q.ImmediateExecution = p.ImmediateExecution
		q.SatAmount = money.NewSatoshis(p.SatAmount.IntPart())
		q.CentAmount = money.NewUsdCents(p.CentAmount.IntPart())
		q.SatsSpread = p.SatsSpread
		q.CentsSpread = p.CentsSpread
		q.ExpiresAt = p.ExpiresAt
		q.CorrelationID = p.CorrelationID
	case EventAccepted:
		q.accepted = true
		q.acceptedAt = ev.Accepted.At
	}
	if ev.Sequence > q.nextSequence {
		q.nextSequence = ev.Sequence
	}
}

// recordPending folds ev into the current state and queues it to be
// persisted on the next Save; only events with a sequence past the last
// persisted one are written.
func (q *Quote) recordPending(evType EventType, at time.Time, init *InitializedPayload, accepted *AcceptedPayload) Event {
	q.nextSequence++
	ev := Event{Sequence: q.nextSequence, Type: evType, At: at, Init: init, Accepted: accepted}
	q.applyEvent(ev)
	q.pendingEvents = append(q.pendingEvents, ev)
	return ev
}
