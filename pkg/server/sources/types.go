package sources

import (
	"context"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

// SourceType represents the type of price source
type SourceType string

const (
	SourceTypeCEX    SourceType = "cex"
	SourceTypeEVM    SourceType = "evm"
	SourceTypeStatic SourceType = "static"
)

// Quote is the last price a source returned for a symbol.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Price     fixedpoint.Price `json:"price"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"`
}

// Source defines the interface that all price sources must implement
type Source interface {
	// Initialize prepares the source for operation
	Initialize(ctx context.Context) error

	// Start begins any background work of the source
	Start(ctx context.Context) error

	// Stop halts the source and cleans up resources
	Stop() error

	// FetchPrice returns the current price of symbol scaled to 8 decimals.
	// An error means the source contributes no sample this cycle.
	FetchPrice(ctx context.Context, symbol string) (fixedpoint.Price, error)

	// Name returns the unique name of this source
	Name() string

	// Type returns the type of this source
	Type() SourceType

	// Symbols returns the list of symbols this source provides
	Symbols() []string

	// IsHealthy returns whether the source is currently healthy
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last successful update
	LastUpdate() time.Time
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
