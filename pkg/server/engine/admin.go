package engine

import (
	"fmt"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/breaker"
)

// ResetBreaker returns a tripped breaker to Normal and reports whether it was
// tripped. The last accepted price stays the reference for the next cycle.
func (e *Engine) ResetBreaker(now uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	if !cur.breaker.Tripped {
		return false
	}

	next := cur.clone()
	next.breaker = breaker.Reset(cur.breaker, now)
	e.current.Store(next)

	e.logger.Info("Circuit breaker reset", "reference", next.breaker.LastAcceptedPrice.String())
	e.publish(Event{
		Kind:      EventCircuitBreakerReset,
		Reference: next.breaker.LastAcceptedPrice,
		Timestamp: now,
	})
	return true
}

// SetParameters replaces the feed parameters after validation.
func (e *Engine) SetParameters(p Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.current.Load().clone()
	next.params = p
	e.current.Store(next)

	e.logger.Info("Parameters updated",
		"deviation_bps", p.PriceDeviationThresholdBps,
		"breaker_bps", p.CircuitBreakerThresholdBps,
		"max_price_age", p.MaxPriceAge,
		"twap_period", p.TwapPeriod,
		"min_sources", p.MinSourcesRequired)
	e.publish(Event{Kind: EventParametersUpdated, Timestamp: e.unixNow()})
	return nil
}

// SetPaused pauses or resumes the feed. While paused, reads return the
// emergency price.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	if cur.paused == paused {
		return
	}
	next := cur.clone()
	next.paused = paused
	e.current.Store(next)

	kind := EventUnpaused
	if paused {
		kind = EventPaused
	}
	e.logger.Warn("Feed pause state changed", "paused", paused)
	e.publish(Event{Kind: kind, Price: next.emergencyPrice, Timestamp: e.unixNow()})
}

// SetEmergencyPrice sets the price served while paused.
func (e *Engine) SetEmergencyPrice(p fixedpoint.Price) error {
	if p.IsZero() {
		return fmt.Errorf("%w: emergency price must be positive", ErrInvalidParameters)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.current.Load().clone()
	next.emergencyPrice = p
	e.current.Store(next)

	e.logger.Info("Emergency price set", "price", p.String())
	e.publish(Event{Kind: EventEmergencyPriceSet, Price: p, Timestamp: e.unixNow()})
	return nil
}
