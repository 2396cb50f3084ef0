package engine

import (
	"errors"

	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
)

var (
	// ErrInsufficientSources indicates fewer usable samples than required.
	ErrInsufficientSources = errors.New("insufficient sources")
	// ErrNoValidPrices indicates that aggregation produced no price.
	ErrNoValidPrices = aggregator.ErrNoValidPrices
	// ErrCircuitBreakerActive indicates a read while the breaker is tripped.
	ErrCircuitBreakerActive = errors.New("circuit breaker active")
	// ErrPriceStale indicates the last accepted price is older than the max age.
	ErrPriceStale = errors.New("price stale")
	// ErrNoPriceAvailable indicates no aggregate has been accepted yet.
	ErrNoPriceAvailable = errors.New("no price available")
	// ErrInvalidParameters indicates rejected administrative input.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrSourceExists indicates a duplicate source ID.
	ErrSourceExists = errors.New("source already exists")
	// ErrSourceNotFound indicates an unknown source ID.
	ErrSourceNotFound = errors.New("source not found")
	// ErrInvalidState indicates a persisted state that cannot be restored.
	ErrInvalidState = errors.New("invalid engine state")
)
