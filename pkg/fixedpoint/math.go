package fixedpoint

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Wide wraps an unsigned integer in an arbitrary precision decimal so that
// products and sums never overflow.
func Wide(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// QuoTrunc returns num / den truncated toward zero as a uint64.
func QuoTrunc(num, den decimal.Decimal) (uint64, error) {
	if den.IsZero() {
		return 0, fmt.Errorf("%w", ErrDivisionByZero)
	}
	q, _ := num.QuoRem(den, 0)
	return toUint64(q)
}

// MulDiv computes a*b/c with truncating division and no intermediate overflow.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w", ErrDivisionByZero)
	}
	return QuoTrunc(Wide(a).Mul(Wide(b)), Wide(c))
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b Price) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

// Mid returns the truncated mean of a and b without overflowing.
func Mid(a, b Price) Price {
	return a/2 + b/2 + (a%2+b%2)/2
}

// DeviationBps returns |value - reference| * 10000 / reference, truncated.
//
// A zero reference has no meaningful relative deviation: a zero value is
// treated as identical (0) and any other value as infinitely far
// (math.MaxUint64).
func DeviationBps(value, reference Price) uint64 {
	if reference == 0 {
		if value == 0 {
			return 0
		}
		return math.MaxUint64
	}
	dev, err := MulDiv(AbsDiff(value, reference), BasisPoints, uint64(reference))
	if err != nil {
		return math.MaxUint64
	}
	return dev
}
