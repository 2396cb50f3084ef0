// Package sources provides price source interfaces and implementations.
package sources

import "errors"

var (
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrUnknownSymbol indicates a symbol the source is not configured for.
	ErrUnknownSymbol = errors.New("symbol not configured for source")
	// ErrSourceStopped indicates that the source has been stopped.
	ErrSourceStopped = errors.New("source stopped")
	// ErrUnknownSource indicates that no factory is registered for a source.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrZeroLiquidity indicates that there is zero liquidity in the pool.
	ErrZeroLiquidity = errors.New("zero liquidity in pool")
	// ErrPriceOutOfRange indicates a price that does not fit the 8 decimal
	// fixed-point range.
	ErrPriceOutOfRange = errors.New("price out of range")
	// ErrClientNotInitialized indicates that the client is not initialized.
	ErrClientNotInitialized = errors.New("client not initialized")
	// ErrNoPairsConfiguredHelper indicates that no pairs are configured.
	ErrNoPairsConfiguredHelper = errors.New("no pairs configured")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be in BASE/QUOTE format")
	// ErrEmptyBaseCurrency indicates that the symbol BASE currency cannot be empty.
	ErrEmptyBaseCurrency = errors.New("symbol BASE currency cannot be empty")
	// ErrEmptyQuoteCurrency indicates that the symbol QUOTE currency cannot be empty.
	ErrEmptyQuoteCurrency = errors.New("symbol QUOTE currency cannot be empty")
)
