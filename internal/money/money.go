// Package money provides fixed-point arithmetic for the 6-decimal
// settlement currency. Balances, allowances and reserved collateral are
// held as integer micro-units so comparisons never suffer float drift.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Micros is an amount in integer micro-units (1e-6) of the settlement currency.
type Micros int64

const unitScale = 6

var microFactor = decimal.New(1, unitScale) // 10^6

// Parse converts a decimal string to micro-units. Inputs with more than
// six fractional digits are rejected rather than silently rounded.
func Parse(s string) (Micros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	scaled := d.Mul(microFactor)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, unitScale)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q overflows micro-units", s)
	}
	return Micros(scaled.IntPart()), nil
}

// MustParse is Parse for trusted constants; it panics on malformed input.
func MustParse(s string) Micros {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromFloat converts a float amount to micro-units, rounding half away
// from zero at the sixth decimal.
func FromFloat(f float64) Micros {
	return Micros(decimal.NewFromFloat(f).Mul(microFactor).Round(0).IntPart())
}

// String renders the amount as a decimal string with trailing zeros trimmed.
func (m Micros) String() string {
	return decimal.New(int64(m), -unitScale).String()
}

// Float64 is for display and ratio math only, never for comparisons.
func (m Micros) Float64() float64 {
	f, _ := decimal.New(int64(m), -unitScale).Float64()
	return f
}

func (m Micros) IsPositive() bool { return m > 0 }

// Sub returns m - n floored at zero. Available-to-trade style arithmetic
// never goes negative.
func (m Micros) SubFloor(n Micros) Micros {
	if n >= m {
		return 0
	}
	return m - n
}

func Min(a, b Micros) Micros {
	if a < b {
		return a
	}
	return b
}
