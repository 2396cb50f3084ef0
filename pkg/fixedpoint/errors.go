package fixedpoint

import "errors"

var (
	// ErrInvalidPrice indicates a malformed or negative price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrOverflow indicates a result that does not fit in 64 bits.
	ErrOverflow = errors.New("value overflows uint64")
	// ErrDivisionByZero indicates a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
)
