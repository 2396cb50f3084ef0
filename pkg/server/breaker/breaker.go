// Package breaker implements the latching circuit breaker that guards the
// published price against excessive single-step jumps.
//
// The breaker has two states. It starts Normal, moves to Tripped when a
// candidate deviates from the last accepted price by more than the configured
// threshold, and only returns to Normal through an explicit Reset. While
// Tripped every candidate is rejected. All functions are pure: they return the
// next state instead of mutating the current one.
package breaker

import (
	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

// Status is the breaker state.
type Status int

const (
	// Normal accepts candidates within the threshold.
	Normal Status = iota
	// Tripped rejects every candidate until reset.
	Tripped
)

func (s Status) String() string {
	switch s {
	case Normal:
		return "normal"
	case Tripped:
		return "tripped"
	default:
		return "unknown"
	}
}

// State is the persistent breaker state.
type State struct {
	Tripped            bool             `json:"tripped"`
	LastAcceptedPrice  fixedpoint.Price `json:"last_accepted_price"`
	LastTransitionTime uint64           `json:"last_transition_time"`
}

// Status returns the state as a Status.
func (s State) Status() Status {
	if s.Tripped {
		return Tripped
	}
	return Normal
}

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Accepted     bool
	DeviationBps uint64
	// Tripped is set only when this evaluation caused the Normal -> Tripped
	// transition.
	Tripped bool
}

// Evaluate compares candidate against the last accepted price.
func Evaluate(state State, candidate fixedpoint.Price, thresholdBps, now uint64) (State, Decision) {
	if state.LastAcceptedPrice.IsZero() && !state.Tripped {
		state.LastAcceptedPrice = candidate
		return state, Decision{Accepted: true}
	}

	dev := fixedpoint.DeviationBps(candidate, state.LastAcceptedPrice)
	if state.LastAcceptedPrice.IsZero() {
		dev = 0
	}

	if state.Tripped {
		return state, Decision{DeviationBps: dev}
	}

	if dev > thresholdBps {
		state.Tripped = true
		state.LastTransitionTime = now
		return state, Decision{DeviationBps: dev, Tripped: true}
	}

	state.LastAcceptedPrice = candidate
	return state, Decision{Accepted: true, DeviationBps: dev}
}

// Reset returns the breaker to Normal. The last accepted price is kept as the
// reference for the next candidate.
func Reset(state State, now uint64) State {
	if !state.Tripped {
		return state
	}
	state.Tripped = false
	state.LastTransitionTime = now
	return state
}
