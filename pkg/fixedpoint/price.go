// Package fixedpoint provides the deterministic integer arithmetic shared by the
// aggregation, circuit breaker and TWAP components.
//
// Prices are unsigned integers scaled by 10^8. Thresholds are basis points.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// Decimals is the number of implied decimal places of a Price.
	Decimals = 8
	// Scale is 10^Decimals.
	Scale uint64 = 100_000_000
	// BasisPoints is 100% expressed in basis points.
	BasisPoints uint64 = 10_000
)

// Price is a non-negative price scaled by 10^8.
type Price uint64

// Zero is the unset price.
const Zero Price = 0

// IsZero reports whether the price is unset.
func (p Price) IsZero() bool {
	return p == 0
}

// Decimal returns the human readable value (p / 10^8).
func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(p)), -Decimals)
}

// String renders the price with all 8 decimals.
func (p Price) String() string {
	return p.Decimal().StringFixed(Decimals)
}

// MarshalText encodes the price as its raw scaled integer.
func (p Price) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%d", uint64(p))), nil
}

// UnmarshalText decodes a raw scaled integer.
func (p *Price) UnmarshalText(text []byte) error {
	d, err := decimal.NewFromString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, text)
	}
	if !d.IsInteger() {
		return fmt.Errorf("%w: scaled price must be an integer: %s", ErrInvalidPrice, text)
	}
	v, err := toUint64(d)
	if err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

// FromDecimal converts a human readable value into a Price, truncating digits
// beyond the 8th decimal.
func FromDecimal(d decimal.Decimal) (Price, error) {
	if d.IsNegative() {
		return Zero, fmt.Errorf("%w: negative value %s", ErrInvalidPrice, d.String())
	}
	v, err := toUint64(d.Shift(Decimals).Truncate(0))
	if err != nil {
		return Zero, err
	}
	return Price(v), nil
}

// ParsePrice parses a human readable decimal string such as "1.00500000".
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, s)
	}
	return FromDecimal(d)
}

// MustParsePrice is ParsePrice for fixtures; it panics on malformed input.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func toUint64(d decimal.Decimal) (uint64, error) {
	bi := d.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return bi.Uint64(), nil
}
