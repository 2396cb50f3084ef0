package fixedpoint

import (
	"database/sql/driver"
	"fmt"
)

// Value stores the price as a NUMERIC-compatible decimal string.
func (p Price) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan reads a NUMERIC column. NULL scans as Zero.
func (p *Price) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = Zero
		return nil
	case []byte:
		return p.scanString(string(v))
	case string:
		return p.scanString(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidPrice, src)
	}
}

func (p *Price) scanString(s string) error {
	v, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
