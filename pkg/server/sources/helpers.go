// Package sources provides price source interfaces and implementations.
package sources

import (
	"fmt"
	"strings"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.go.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.NewNoopLogger()
}

// GetNameFromConfig returns config["name"] or fallback.
func GetNameFromConfig(config map[string]interface{}, fallback string) string {
	if name, ok := config["name"].(string); ok && name != "" {
		return name
	}
	return fallback
}

// ParsePairsFromMap extracts pair mappings from config where pairs is a map.
// Expected format: pairs: { "USDP/USD": "USDPUSDT", "ETH/USD": "ETHUSDT" }.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	pairsMap, ok := pairsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for unified, sourceRaw := range pairsMap {
		source, ok := sourceRaw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, unified, sourceRaw)
		}
		if err := ValidateSymbolFormat(unified); err != nil {
			return nil, fmt.Errorf("unified symbol: %w", err)
		}
		pairs[unified] = source
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w", ErrNoPairsConfiguredHelper)
	}

	return pairs, nil
}

// GetIntFromMap reads an integer that YAML or JSON may have decoded as int,
// int64 or float64.
func GetIntFromMap(m map[string]interface{}, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	default:
		return defaultVal
	}
}

// ValidateSymbolFormat checks if a symbol is in valid BASE/QUOTE format
// Valid formats:
//   - "USDP/USD", "ETH/USDT"
//
// Invalid formats:
//   - "USDP" (no quote currency)
//   - "USDPUSDT" (no separator)
//   - "" (empty).
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w", ErrInvalidSymbolFormat)
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolFormat, symbol)
	}

	base := strings.TrimSpace(parts[0])
	quote := strings.TrimSpace(parts[1])

	if base == "" {
		return fmt.Errorf("%w: %s", ErrEmptyBaseCurrency, symbol)
	}
	if quote == "" {
		return fmt.Errorf("%w: %s", ErrEmptyQuoteCurrency, symbol)
	}

	return nil
}
