package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

// ContractCaller is the read-only subset of an EVM client used by the source.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// UniswapV2Source reads spot prices from Uniswap V2 compatible pairs
// (Uniswap, PancakeSwap, SushiSwap).
type UniswapV2Source struct {
	*sources.BaseSource
	rpcURL  string
	pairs   map[string]PairConfig
	pairABI abi.ABI

	mu     sync.RWMutex
	caller ContractCaller
	client *ethclient.Client
}

// PairConfig holds configuration for a trading pair.
type PairConfig struct {
	Symbol      string
	PairAddress common.Address
	Decimals0   int
	Decimals1   int
	// Invert prices token1 in token0 instead of token0 in token1.
	Invert bool
}

// Uniswap V2 Pair ABI (only getReserves function).
const pairABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
		{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
		{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// NewUniswapV2Source creates a pool source from config:
//
//	rpc_url: https://...
//	pairs:
//	  - symbol: USDP/USDC
//	    pair_address: 0x...
//	    decimals0: 18
//	    decimals1: 6
//	    invert: false
func NewUniswapV2Source(config map[string]interface{}) (sources.Source, error) {
	rpcURL, _ := config["rpc_url"].(string)
	caller, _ := config["caller"].(ContractCaller)
	if rpcURL == "" && caller == nil {
		return nil, fmt.Errorf("%w", ErrRPCURLRequired)
	}

	pairs, err := parsePairs(config)
	if err != nil {
		return nil, err
	}

	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	pairMappings := make(map[string]string, len(pairs))
	for symbol := range pairs {
		pairMappings[symbol] = symbol
	}

	name := sources.GetNameFromConfig(config, "uniswapv2")
	base := sources.NewBaseSource(name, sources.SourceTypeEVM, pairMappings, sources.GetLoggerFromConfig(config))

	return &UniswapV2Source{
		BaseSource: base,
		rpcURL:     rpcURL,
		pairs:      pairs,
		pairABI:    pairABI,
		caller:     caller,
	}, nil
}

func parsePairs(config map[string]interface{}) (map[string]PairConfig, error) {
	pairsRaw, ok := config["pairs"].([]interface{})
	if !ok || len(pairsRaw) == 0 {
		return nil, fmt.Errorf("%w", ErrPairsConfigRequired)
	}

	pairs := make(map[string]PairConfig, len(pairsRaw))
	for i, pairRaw := range pairsRaw {
		pairMap, ok := pairRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: pair[%d] is not an object", sources.ErrInvalidConfig, i)
		}

		symbol, _ := pairMap["symbol"].(string)
		pairAddr, _ := pairMap["pair_address"].(string)
		invert, _ := pairMap["invert"].(bool)

		if err := sources.ValidateSymbolFormat(symbol); err != nil {
			return nil, fmt.Errorf("pair[%d]: %w", i, err)
		}
		if !common.IsHexAddress(pairAddr) {
			return nil, fmt.Errorf("%w: pair[%d] %q", ErrInvalidPairAddress, i, pairAddr)
		}

		pairs[symbol] = PairConfig{
			Symbol:      symbol,
			PairAddress: common.HexToAddress(pairAddr),
			Decimals0:   sources.GetIntFromMap(pairMap, "decimals0", 18),
			Decimals1:   sources.GetIntFromMap(pairMap, "decimals1", 18),
			Invert:      invert,
		}
	}
	return pairs, nil
}

// Initialize connects to the EVM RPC endpoint unless a caller was injected.
func (s *UniswapV2Source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.caller != nil {
		s.SetHealthy(true)
		return nil
	}

	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC: %w", err)
	}

	s.client = client
	s.caller = client
	s.SetHealthy(true)
	s.Logger().Info("Connected to EVM RPC", "pairs", len(s.pairs))
	return nil
}

// Start is a no-op; reserves are read on demand.
func (s *UniswapV2Source) Start(_ context.Context) error {
	return nil
}

// Stop closes the RPC client.
func (s *UniswapV2Source) Stop() error {
	s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// FetchPrice reads the pair reserves of symbol and converts them into a price.
func (s *UniswapV2Source) FetchPrice(ctx context.Context, symbol string) (fixedpoint.Price, error) {
	if s.Stopped() {
		return fixedpoint.Zero, sources.ErrSourceStopped
	}

	s.mu.RLock()
	caller := s.caller
	s.mu.RUnlock()
	if caller == nil {
		return fixedpoint.Zero, fmt.Errorf("%w", sources.ErrClientNotInitialized)
	}

	key, ok := s.GetSourceSymbol(symbol)
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("%w: %s", sources.ErrUnknownSymbol, symbol)
	}
	pair := s.pairs[key]

	reserves, err := s.getReserves(ctx, caller, pair.PairAddress)
	if err != nil {
		s.RecordFailure(symbol, err)
		return fixedpoint.Zero, err
	}

	price, err := sources.PriceFromReserves(reserves.Reserve0, reserves.Reserve1, pair.Decimals0, pair.Decimals1, pair.Invert)
	if err != nil {
		s.RecordFailure(symbol, err)
		return fixedpoint.Zero, fmt.Errorf("pair %s: %w", pair.PairAddress.Hex(), err)
	}

	s.RecordQuote(symbol, price, time.Now())
	return price, nil
}

// Reserves holds the pair reserves.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// getReserves calls the getReserves() function on a Uniswap V2 pair contract.
func (s *UniswapV2Source) getReserves(ctx context.Context, caller ContractCaller, pairAddr common.Address) (*Reserves, error) {
	data, err := s.pairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to pack getReserves call: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{
		To:   &pairAddr,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return nil, fmt.Errorf("failed to call getReserves: %w", err)
	}

	var reserves Reserves
	if err := s.pairABI.UnpackIntoInterface(&reserves, "getReserves", result); err != nil {
		return nil, fmt.Errorf("%w: failed to unpack getReserves result: %v", sources.ErrInvalidResponse, err)
	}

	return &reserves, nil
}
