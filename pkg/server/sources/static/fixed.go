// Package static provides a source that serves configured prices. It is used
// for development setups and as a manual fallback quote.
package static

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

// FixedSource returns the same configured price on every fetch.
type FixedSource struct {
	*sources.BaseSource
	prices map[string]fixedpoint.Price
}

// NewFixedSource creates a fixed source from config:
//
//	prices: { "USDP/USD": "1.0001" }
func NewFixedSource(config map[string]interface{}) (sources.Source, error) {
	raw, ok := config["prices"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: prices map is required", sources.ErrInvalidConfig)
	}

	prices := make(map[string]fixedpoint.Price, len(raw))
	pairs := make(map[string]string, len(raw))
	for symbol, v := range raw {
		if err := sources.ValidateSymbolFormat(symbol); err != nil {
			return nil, err
		}
		p, err := parseConfiguredPrice(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", sources.ErrInvalidConfig, symbol, err)
		}
		prices[symbol] = p
		pairs[symbol] = symbol
	}

	name := sources.GetNameFromConfig(config, "fixed")
	base := sources.NewBaseSource(name, sources.SourceTypeStatic, pairs, sources.GetLoggerFromConfig(config))

	return &FixedSource{BaseSource: base, prices: prices}, nil
}

func parseConfiguredPrice(v interface{}) (fixedpoint.Price, error) {
	switch t := v.(type) {
	case string:
		return fixedpoint.ParsePrice(strings.TrimSpace(t))
	case int:
		return fixedpoint.ParsePrice(fmt.Sprintf("%d", t))
	case float64:
		return fixedpoint.ParsePrice(fmt.Sprintf("%.8f", t))
	default:
		return fixedpoint.Zero, fmt.Errorf("unsupported price type %T", v)
	}
}

// Initialize marks the source healthy.
func (s *FixedSource) Initialize(_ context.Context) error {
	s.SetHealthy(true)
	return nil
}

// Start is a no-op.
func (s *FixedSource) Start(_ context.Context) error {
	return nil
}

// Stop halts the source.
func (s *FixedSource) Stop() error {
	s.Close()
	return nil
}

// FetchPrice returns the configured price of symbol.
func (s *FixedSource) FetchPrice(_ context.Context, symbol string) (fixedpoint.Price, error) {
	if s.Stopped() {
		return fixedpoint.Zero, sources.ErrSourceStopped
	}
	key, ok := s.GetSourceSymbol(symbol)
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("%w: %s", sources.ErrUnknownSymbol, symbol)
	}
	p := s.prices[key]
	s.RecordQuote(symbol, p, time.Now())
	return p, nil
}

func init() {
	sources.Register("static.fixed", NewFixedSource)
}
