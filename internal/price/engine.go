package price

import (
	"errors"
	"fmt"

	"github.com/aristath/stablesats/internal/money"
)

// ErrEmptyBook is returned by an Engine conversion when the cache has no
// book to walk yet.
var ErrEmptyBook = errors.New("price: no order book cached")

// Engine exposes the eight public conversion operations,
// {buy, sell} x {immediate, delayed} x {sats, cents}. "Buy" means the user
// is buying USD (paying sats, side = bids); "sell" means the user is
// selling USD (receiving sats, side = asks).
//
// Fee application always disadvantages the user: cents granted to a buyer
// are decreased and floored, cents charged to a seller are increased and
// ceiled, sats charged to a buyer are increased and ceiled, sats granted
// to a seller are decreased and floored.
type Engine struct {
	book *BookCache
	fees FeeCalculator
}

// NewEngine wires a book cache and fee calculator into an Engine.
func NewEngine(book *BookCache, fees FeeCalculator) *Engine {
	return &Engine{book: book, fees: fees}
}

func (e *Engine) currentBook() (*Book, error) {
	b := e.book.Current()
	if b == nil {
		return nil, ErrEmptyBook
	}
	return b, nil
}

// CentsFromSatsForBuy converts a sat amount to the cents a buy quote would
// grant, walking the bid side and flooring after a decreasing fee.
func (e *Engine) CentsFromSatsForBuy(sats money.Satoshis, immediate bool) (money.UsdCents, error) {
	b, err := e.currentBook()
	if err != nil {
		return money.UsdCents{}, err
	}
	rate := e.fees.EffectiveRate(immediate)
	raw := WalkSatsToCents(b.Bids(), sats.Decimal())
	final := DecreaseByFee(raw, rate)
	return money.NewUsdCents(final.Floor().IntPart()), nil
}

// CentsFromSatsForSell converts a sat amount to the cents a sell quote
// would charge, walking the ask side and ceiling after an increasing fee.
func (e *Engine) CentsFromSatsForSell(sats money.Satoshis, immediate bool) (money.UsdCents, error) {
	b, err := e.currentBook()
	if err != nil {
		return money.UsdCents{}, err
	}
	rate := e.fees.EffectiveRate(immediate)
	raw := WalkSatsToCents(b.Asks(), sats.Decimal())
	final := IncreaseByFee(raw, rate)
	return money.NewUsdCents(final.Ceil().IntPart()), nil
}

// SatsFromCentsForBuy converts a cent amount to the sats a buy quote would
// require from the user, walking the bid side and ceiling after an
// increasing fee.
func (e *Engine) SatsFromCentsForBuy(cents money.UsdCents, immediate bool) (money.Satoshis, error) {
	b, err := e.currentBook()
	if err != nil {
		return money.Satoshis{}, err
	}
	rate := e.fees.EffectiveRate(immediate)
	raw := WalkCentsToSats(b.Bids(), cents.Decimal())
	final := IncreaseByFee(raw, rate)
	return money.NewSatoshis(final.Ceil().IntPart()), nil
}

// SatsFromCentsForSell converts a cent amount to the sats a sell quote
// would grant the user, walking the ask side and flooring after a
// decreasing fee.
func (e *Engine) SatsFromCentsForSell(cents money.UsdCents, immediate bool) (money.Satoshis, error) {
	b, err := e.currentBook()
	if err != nil {
		return money.Satoshis{}, err
	}
	rate := e.fees.EffectiveRate(immediate)
	raw := WalkCentsToSats(b.Asks(), cents.Decimal())
	final := DecreaseByFee(raw, rate)
	return money.NewSatoshis(final.Floor().IntPart()), nil
}

// MidPrice returns (best ask + best bid) / 2 over the cached book.
func (e *Engine) MidPrice() (string, error) {
	b, err := e.currentBook()
	if err != nil {
		return "", err
	}
	asks, bids := b.Asks(), b.Bids()
	if len(asks) == 0 || len(bids) == 0 {
		return "", fmt.Errorf("price: book missing a side, cannot derive mid price")
	}
	return MidPriceOfOneSat(asks[0].Price, bids[0].Price).String(), nil
}
