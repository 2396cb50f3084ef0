// Package evm provides EVM-based price sources reading Uniswap V2 style pools.
package evm

import "errors"

var (
	// ErrRPCURLRequired indicates that rpc_url configuration is required.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrPairsConfigRequired indicates that pairs configuration is required.
	ErrPairsConfigRequired = errors.New("pairs configuration is required")
	// ErrInvalidPairAddress indicates a pair address that is not hex.
	ErrInvalidPairAddress = errors.New("invalid pair address")
)
