package price

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrNoProvidersSucceeded is returned by Mixer.Apply when no provider
// contributed a price and no provider reported an error (for example, none
// is registered).
var ErrNoProvidersSucceeded = errors.New("price: no provider produced a price")

// Provider is anything the mixer can take a weighted average over: a
// TickCache, an order-book derived mid price, or a test double.
type Provider interface {
	Latest() (decimal.Decimal, error)
}

type weighted struct {
	provider Provider
	weight   decimal.Decimal
}

// Mixer holds a set of weighted price providers keyed by a stable exchange
// id and computes a weighted average over the ones currently healthy.
type Mixer struct {
	mu        sync.RWMutex
	providers map[string]weighted
}

// NewMixer creates an empty Mixer.
func NewMixer() *Mixer {
	return &Mixer{providers: make(map[string]weighted)}
}

// Register adds or replaces the provider for exchangeID.
func (m *Mixer) Register(exchangeID string, p Provider, weight decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[exchangeID] = weighted{provider: p, weight: weight}
}

// Apply returns Σ w_i·f(provider_i.Latest()) / Σ w_i over providers whose
// Latest succeeds. Providers whose Latest fails contribute to neither sum.
// If every provider fails, Apply returns the last error seen, as is.
func (m *Mixer) Apply(f func(decimal.Decimal) decimal.Decimal) (decimal.Decimal, error) {
	m.mu.RLock()
	providers := make([]weighted, 0, len(m.providers))
	for _, w := range m.providers {
		providers = append(providers, w)
	}
	m.mu.RUnlock()

	var numerator, denominator decimal.Decimal
	var lastErr error
	for _, w := range providers {
		price, err := w.provider.Latest()
		if err != nil {
			lastErr = err
			continue
		}
		numerator = numerator.Add(w.weight.Mul(f(price)))
		denominator = denominator.Add(w.weight)
	}
	if denominator.IsZero() {
		if lastErr == nil {
			lastErr = ErrNoProvidersSucceeded
		}
		return decimal.Zero, lastErr
	}
	return numerator.Div(denominator), nil
}
