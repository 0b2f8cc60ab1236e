// Package price implements the per-exchange price cache, order-book merge
// logic, volume-based sat/cent converter, weighted price mixer, and fee
// calculator. Caches are guarded by read/write locks so readers always see
// a consistent snapshot.
package price

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPriceAvailable is returned by TickCache.Latest before the first tick
// has ever arrived.
var ErrNoPriceAvailable = errors.New("price: no price available yet")

// StalePriceError is returned by TickCache.Latest when the cached tick is
// older than the configured staleness window.
type StalePriceError struct{ At time.Time }

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("price: stale tick from %s", e.At.Format(time.RFC3339))
}

// Tick is one price observation from an exchange.
type Tick struct {
	Timestamp      time.Time
	AskPricePerSat decimal.Decimal
	BidPricePerSat decimal.Decimal
	CorrelationID  string
}

// TickCache holds the latest tick for one exchange. Updates with a
// timestamp no newer than the cached tick are ignored (monotonic by ts).
type TickCache struct {
	mu         sync.RWMutex
	latest     *Tick
	staleAfter time.Duration
}

// NewTickCache creates an empty cache with the given staleness window.
func NewTickCache(staleAfter time.Duration) *TickCache {
	return &TickCache{staleAfter: staleAfter}
}

// Update replaces the cached tick if t is strictly newer than what's cached.
func (c *TickCache) Update(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest != nil && !t.Timestamp.After(c.latest.Timestamp) {
		return
	}
	cp := t
	c.latest = &cp
}

// Latest returns the cached tick as of now, or ErrNoPriceAvailable /
// *StalePriceError.
func (c *TickCache) Latest(now time.Time) (Tick, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Tick{}, ErrNoPriceAvailable
	}
	if now.Sub(c.latest.Timestamp) > c.staleAfter {
		return Tick{}, &StalePriceError{At: c.latest.Timestamp}
	}
	return *c.latest, nil
}

// TickMidProvider adapts a TickCache to the Mixer's Provider interface,
// exposing the tick's mid price ((best ask + best bid) / 2) as of
// wall-clock time. One of these wraps every exchange's TickCache so a
// multi-exchange Mixer can average across them even though only one
// exchange adapter (okex) is wired today.
type TickMidProvider struct {
	Cache *TickCache
	Now   func() time.Time
}

// Latest implements Provider.
func (p TickMidProvider) Latest() (decimal.Decimal, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	t, err := p.Cache.Latest(now())
	if err != nil {
		return decimal.Decimal{}, err
	}
	return MidPriceOfOneSat(t.AskPricePerSat, t.BidPricePerSat), nil
}
