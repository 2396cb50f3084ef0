package engine

import (
	"fmt"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/twap"
)

// Parameters are the tunable thresholds of one feed. Periods are in seconds.
type Parameters struct {
	PriceDeviationThresholdBps uint64 `json:"price_deviation_threshold_bps" yaml:"price_deviation_threshold_bps"`
	CircuitBreakerThresholdBps uint64 `json:"circuit_breaker_threshold_bps" yaml:"circuit_breaker_threshold_bps"`
	MaxPriceAge                uint64 `json:"max_price_age" yaml:"max_price_age"`
	TwapPeriod                 uint64 `json:"twap_period" yaml:"twap_period"`
	MinSourcesRequired         int    `json:"min_sources_required" yaml:"min_sources_required"`
}

// DefaultParameters returns 5% outlier and 10% breaker thresholds, a one hour
// max age, a 30 minute TWAP period and two required sources.
func DefaultParameters() Parameters {
	return Parameters{
		PriceDeviationThresholdBps: 500,
		CircuitBreakerThresholdBps: 1000,
		MaxPriceAge:                3600,
		TwapPeriod:                 1800,
		MinSourcesRequired:         2,
	}
}

// Validate reports the first invalid field.
func (p Parameters) Validate() error {
	if p.PriceDeviationThresholdBps == 0 || p.PriceDeviationThresholdBps > fixedpoint.BasisPoints {
		return fmt.Errorf("%w: price deviation threshold %d bps must be in (0, %d]",
			ErrInvalidParameters, p.PriceDeviationThresholdBps, fixedpoint.BasisPoints)
	}
	if p.CircuitBreakerThresholdBps == 0 || p.CircuitBreakerThresholdBps > fixedpoint.BasisPoints {
		return fmt.Errorf("%w: circuit breaker threshold %d bps must be in (0, %d]",
			ErrInvalidParameters, p.CircuitBreakerThresholdBps, fixedpoint.BasisPoints)
	}
	if p.MaxPriceAge == 0 {
		return fmt.Errorf("%w: max price age must be positive", ErrInvalidParameters)
	}
	if p.TwapPeriod == 0 || p.TwapPeriod > twap.MaxWindow {
		return fmt.Errorf("%w: twap period %d must be in (0, %d]", ErrInvalidParameters, p.TwapPeriod, twap.MaxWindow)
	}
	if p.MinSourcesRequired < 1 {
		return fmt.Errorf("%w: min sources required must be at least 1", ErrInvalidParameters)
	}
	return nil
}
