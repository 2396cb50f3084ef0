package sources

import (
	"sync"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
)

// BaseSource provides common functionality for all price sources
type BaseSource struct {
	name       string
	sourcetype SourceType
	symbols    []string
	pairs      map[string]string // unified symbol -> source-specific symbol mapping
	quotes     map[string]Quote
	quotesMu   sync.RWMutex
	lastUpdate time.Time
	updateMu   sync.RWMutex
	healthy    bool
	healthMu   sync.RWMutex
	stopChan   chan struct{}
	logger     *logging.Logger
}

// NewBaseSource creates a new base source with pair mappings
// pairs: map of unified symbol (e.g., "USDP/USD") -> source-specific symbol (e.g., "USDPUSDT")
func NewBaseSource(name string, sourcetype SourceType, pairs map[string]string, logger *logging.Logger) *BaseSource {
	symbols := make([]string, 0, len(pairs))
	for unifiedSymbol := range pairs {
		symbols = append(symbols, unifiedSymbol)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &BaseSource{
		name:       name,
		sourcetype: sourcetype,
		symbols:    symbols,
		pairs:      pairs,
		quotes:     make(map[string]Quote),
		stopChan:   make(chan struct{}),
		logger:     logger.With("source", string(sourcetype)+"."+name),
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Symbols returns the symbols this source provides
func (b *BaseSource) Symbols() []string {
	return b.symbols
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	b.healthy = healthy
	b.healthMu.Unlock()
	metrics.RecordSourceHealth(b.name, string(b.sourcetype), healthy)
}

// LastUpdate returns the time of the last successful price update
func (b *BaseSource) LastUpdate() time.Time {
	b.updateMu.RLock()
	defer b.updateMu.RUnlock()
	return b.lastUpdate
}

// SetLastUpdate sets the last update time
func (b *BaseSource) SetLastUpdate(t time.Time) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.lastUpdate = t
}

// RecordQuote stores a fetched price, marks the source healthy and records
// metrics.
func (b *BaseSource) RecordQuote(symbol string, price fixedpoint.Price, timestamp time.Time) {
	b.quotesMu.Lock()
	b.quotes[symbol] = Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: timestamp,
		Source:    b.name,
	}
	b.quotesMu.Unlock()

	b.SetLastUpdate(timestamp)
	b.SetHealthy(true)
	metrics.RecordSourceUpdate(b.name, symbol)
}

// RecordFailure marks the source unhealthy after a failed fetch.
func (b *BaseSource) RecordFailure(symbol string, err error) {
	b.SetHealthy(false)
	metrics.RecordSourceError(b.name, symbol)
	b.logger.Warn("Price fetch failed", "symbol", symbol, "error", err)
}

// GetQuote returns the last quote for symbol.
func (b *BaseSource) GetQuote(symbol string) (Quote, bool) {
	b.quotesMu.RLock()
	defer b.quotesMu.RUnlock()
	q, ok := b.quotes[symbol]
	return q, ok
}

// Stopped reports whether Close was called.
func (b *BaseSource) Stopped() bool {
	select {
	case <-b.stopChan:
		return true
	default:
		return false
	}
}

// Close closes the stop channel
func (b *BaseSource) Close() {
	select {
	case <-b.stopChan:
		// Already closed
	default:
		close(b.stopChan)
	}
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// GetSourceSymbol converts a unified symbol to the source-specific symbol. An
// exact match wins; otherwise any configured pair that normalizes to the same
// canonical symbol is used (USDP/USDT serves a USDP/USD request).
func (b *BaseSource) GetSourceSymbol(unifiedSymbol string) (string, bool) {
	if s, ok := b.pairs[unifiedSymbol]; ok {
		return s, true
	}
	for unified, s := range b.pairs {
		if IsEquivalentSymbol(unified, unifiedSymbol) {
			return s, true
		}
	}
	return "", false
}

// GetAllPairs returns a copy of the pair mappings
func (b *BaseSource) GetAllPairs() map[string]string {
	pairs := make(map[string]string, len(b.pairs))
	for k, v := range b.pairs {
		pairs[k] = v
	}
	return pairs
}
