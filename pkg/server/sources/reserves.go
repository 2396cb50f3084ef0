package sources

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

const maxTokenDecimals = 77

// PriceFromReserves converts constant-product pool reserves into the price of
// token0 denominated in token1:
//
//	price = (reserve1 / 10^decimals1) / (reserve0 / 10^decimals0)
//
// With invert set, the price of token1 in token0 is returned instead. The
// result is truncated to 8 decimals. Empty reserves on either side mean the
// pool has no usable liquidity.
func PriceFromReserves(reserve0, reserve1 *big.Int, decimals0, decimals1 int, invert bool) (fixedpoint.Price, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return fixedpoint.Zero, ErrZeroLiquidity
	}
	if decimals0 < 0 || decimals0 > maxTokenDecimals || decimals1 < 0 || decimals1 > maxTokenDecimals {
		return fixedpoint.Zero, fmt.Errorf("%w: token decimals %d/%d out of range", ErrInvalidConfig, decimals0, decimals1)
	}

	base, quote := reserve0, reserve1
	baseDec, quoteDec := decimals0, decimals1
	if invert {
		base, quote = reserve1, reserve0
		baseDec, quoteDec = decimals1, decimals0
	}

	// #nosec G115 -- decimals bounded above
	num := decimal.NewFromBigInt(quote, int32(baseDec+fixedpoint.Decimals))
	// #nosec G115 -- decimals bounded above
	den := decimal.NewFromBigInt(base, int32(quoteDec))

	v, err := fixedpoint.QuoTrunc(num, den)
	if err != nil {
		if errors.Is(err, fixedpoint.ErrOverflow) {
			return fixedpoint.Zero, fmt.Errorf("%w: %v", ErrPriceOutOfRange, err)
		}
		return fixedpoint.Zero, err
	}
	if v == 0 {
		return fixedpoint.Zero, fmt.Errorf("%w: below 1e-8", ErrPriceOutOfRange)
	}
	return fixedpoint.Price(v), nil
}
