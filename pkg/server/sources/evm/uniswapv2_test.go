package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

const testPair = "0x1111111111111111111111111111111111111111"

type fakeCaller struct {
	reserve0 *big.Int
	reserve1 *big.Int
	err      error
	calls    int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, err
	}
	if msg.To == nil || msg.To.Hex() != "0x1111111111111111111111111111111111111111" {
		return nil, errors.New("unexpected pair address")
	}
	return parsed.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(1700000000))
}

func tenPow(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func newTestSource(t *testing.T, caller ContractCaller, pair map[string]interface{}) sources.Source {
	t.Helper()
	src, err := NewUniswapV2Source(map[string]interface{}{
		"name":   "pancake",
		"caller": caller,
		"pairs":  []interface{}{pair},
	})
	require.NoError(t, err)
	require.NoError(t, src.Initialize(context.Background()))
	return src
}

func TestUniswapV2FetchPrice(t *testing.T) {
	// 1,000,000 USDP (18 decimals) against 998,000 USDC (6 decimals).
	caller := &fakeCaller{
		reserve0: new(big.Int).Mul(big.NewInt(1_000_000), tenPow(18)),
		reserve1: new(big.Int).Mul(big.NewInt(998_000), tenPow(6)),
	}
	src := newTestSource(t, caller, map[string]interface{}{
		"symbol":       "USDP/USDC",
		"pair_address": testPair,
		"decimals0":    18,
		"decimals1":    6,
	})

	price, err := src.FetchPrice(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(99_800_000), price)
	assert.Equal(t, 1, caller.calls)
	assert.True(t, src.IsHealthy())
	assert.False(t, src.LastUpdate().IsZero())
}

func TestUniswapV2Inverted(t *testing.T) {
	// token0 is USDC (6), token1 is USDP (18); price USDP in USDC.
	caller := &fakeCaller{
		reserve0: new(big.Int).Mul(big.NewInt(1_000_500), tenPow(6)),
		reserve1: new(big.Int).Mul(big.NewInt(1_000_000), tenPow(18)),
	}
	src := newTestSource(t, caller, map[string]interface{}{
		"symbol":       "USDP/USDC",
		"pair_address": testPair,
		"decimals0":    6,
		"decimals1":    18,
		"invert":       true,
	})

	price, err := src.FetchPrice(context.Background(), "USDP/USDC")
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(100_050_000), price)
}

func TestUniswapV2ZeroReserves(t *testing.T) {
	caller := &fakeCaller{reserve0: big.NewInt(0), reserve1: big.NewInt(5)}
	src := newTestSource(t, caller, map[string]interface{}{
		"symbol":       "USDP/USDC",
		"pair_address": testPair,
	})

	_, err := src.FetchPrice(context.Background(), "USDP/USDC")
	require.Error(t, err)
	assert.ErrorIs(t, err, sources.ErrZeroLiquidity)
	assert.False(t, src.IsHealthy())
}

func TestUniswapV2CallError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("rpc down")}
	src := newTestSource(t, caller, map[string]interface{}{
		"symbol":       "USDP/USDC",
		"pair_address": testPair,
	})

	_, err := src.FetchPrice(context.Background(), "USDP/USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestUniswapV2UnknownSymbolAndStop(t *testing.T) {
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}
	src := newTestSource(t, caller, map[string]interface{}{
		"symbol":       "USDP/USDC",
		"pair_address": testPair,
	})

	_, err := src.FetchPrice(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, sources.ErrUnknownSymbol)

	require.NoError(t, src.Stop())
	_, err = src.FetchPrice(context.Background(), "USDP/USDC")
	assert.ErrorIs(t, err, sources.ErrSourceStopped)
	assert.Equal(t, 0, caller.calls)
}

func TestNewUniswapV2SourceInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr error
	}{
		{
			name:    "missing rpc url",
			config:  map[string]interface{}{"pairs": []interface{}{}},
			wantErr: ErrRPCURLRequired,
		},
		{
			name:    "missing pairs",
			config:  map[string]interface{}{"rpc_url": "http://localhost:8545"},
			wantErr: ErrPairsConfigRequired,
		},
		{
			name: "bad address",
			config: map[string]interface{}{
				"rpc_url": "http://localhost:8545",
				"pairs": []interface{}{
					map[string]interface{}{"symbol": "USDP/USDC", "pair_address": "nope"},
				},
			},
			wantErr: ErrInvalidPairAddress,
		},
		{
			name: "bad symbol",
			config: map[string]interface{}{
				"rpc_url": "http://localhost:8545",
				"pairs": []interface{}{
					map[string]interface{}{"symbol": "USDPUSDC", "pair_address": testPair},
				},
			},
			wantErr: sources.ErrInvalidSymbolFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUniswapV2Source(tt.config)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUniswapV2Registered(t *testing.T) {
	assert.Contains(t, sources.List(), "evm.uniswapv2")
}
