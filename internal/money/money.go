// Package money provides the fixed-point currency types used everywhere
// else in the engine: Satoshis and UsdCents. Conversions between them never
// happen implicitly; callers go through internal/price.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// satPrecision and centPrecision are the fractional digits kept by the
// float constructors: 1/10^8 of a sat and 1/10^12 of a cent.
const (
	satPrecision  = 8
	centPrecision = 12
)

// Satoshis is a fixed-point amount of BTC, denominated in 1e-8 BTC units.
type Satoshis struct{ d decimal.Decimal }

// UsdCents is a fixed-point amount of USD, denominated in 1e-2 USD units.
type UsdCents struct{ d decimal.Decimal }

// NewSatoshis builds a Satoshis value from a whole-sat integer.
func NewSatoshis(sats int64) Satoshis {
	return Satoshis{decimal.NewFromInt(sats)}
}

// NewSatoshisFromFloat builds a Satoshis value from a fractional sat amount,
// rounded to satPrecision.
func NewSatoshisFromFloat(sats float64) Satoshis {
	return Satoshis{decimal.NewFromFloat(sats).Round(satPrecision)}
}

// NewUsdCents builds a UsdCents value from a whole-cent integer.
func NewUsdCents(cents int64) UsdCents {
	return UsdCents{decimal.NewFromInt(cents)}
}

// NewUsdCentsFromFloat builds a UsdCents value from a float, rounded to
// sub-cent precision so intermediate fee math doesn't lose information.
func NewUsdCentsFromFloat(cents float64) UsdCents {
	return UsdCents{decimal.NewFromFloat(cents).Round(centPrecision)}
}

func (s Satoshis) Add(o Satoshis) Satoshis { return Satoshis{s.d.Add(o.d)} }
func (s Satoshis) Sub(o Satoshis) Satoshis { return Satoshis{s.d.Sub(o.d)} }
func (s Satoshis) Mul(scalar decimal.Decimal) Satoshis {
	return Satoshis{s.d.Mul(scalar)}
}
func (s Satoshis) Neg() Satoshis { return Satoshis{s.d.Neg()} }

// Floor returns the amount rounded down to a whole satoshi.
func (s Satoshis) Floor() int64 { return s.d.Floor().IntPart() }

// Ceil returns the amount rounded up to a whole satoshi.
func (s Satoshis) Ceil() int64 { return s.d.Ceil().IntPart() }

func (s Satoshis) Decimal() decimal.Decimal { return s.d }
func (s Satoshis) IsZero() bool             { return s.d.IsZero() }
func (s Satoshis) IsNegative() bool         { return s.d.IsNegative() }
func (s Satoshis) String() string           { return s.d.StringFixed(satPrecision) + " sat" }

func (c UsdCents) Add(o UsdCents) UsdCents { return UsdCents{c.d.Add(o.d)} }
func (c UsdCents) Sub(o UsdCents) UsdCents { return UsdCents{c.d.Sub(o.d)} }
func (c UsdCents) Mul(scalar decimal.Decimal) UsdCents {
	return UsdCents{c.d.Mul(scalar)}
}
func (c UsdCents) Neg() UsdCents { return UsdCents{c.d.Neg()} }

// Floor returns the amount rounded down to a whole cent.
func (c UsdCents) Floor() int64 { return c.d.Floor().IntPart() }

// Ceil returns the amount rounded up to a whole cent.
func (c UsdCents) Ceil() int64 { return c.d.Ceil().IntPart() }

func (c UsdCents) Decimal() decimal.Decimal { return c.d }
func (c UsdCents) IsZero() bool             { return c.d.IsZero() }
func (c UsdCents) IsNegative() bool         { return c.d.IsNegative() }
func (c UsdCents) Abs() UsdCents            { return UsdCents{c.d.Abs()} }
func (c UsdCents) Cmp(o UsdCents) int       { return c.d.Cmp(o.d) }
func (c UsdCents) LessThan(o UsdCents) bool { return c.d.LessThan(o.d) }
func (c UsdCents) String() string           { return fmt.Sprintf("%s¢", c.d.StringFixed(2)) }
