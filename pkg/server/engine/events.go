package engine

import (
	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

// EventKind names an engine event.
type EventKind string

const (
	EventPriceUpdated          EventKind = "price_updated"
	EventCycleRejected         EventKind = "cycle_rejected"
	EventCircuitBreakerTripped EventKind = "circuit_breaker_tripped"
	EventCircuitBreakerReset   EventKind = "circuit_breaker_reset"
	EventOutlierDetected       EventKind = "outlier_detected"
	EventParametersUpdated     EventKind = "parameters_updated"
	EventPaused                EventKind = "paused"
	EventUnpaused              EventKind = "unpaused"
	EventEmergencyPriceSet     EventKind = "emergency_price_set"
	EventSourceAdded           EventKind = "source_added"
	EventSourceUpdated         EventKind = "source_updated"
	EventSourceRemoved         EventKind = "source_removed"
)

// Event is emitted after a state change has been committed.
type Event struct {
	Kind         EventKind        `json:"kind"`
	Symbol       string           `json:"symbol"`
	Price        fixedpoint.Price `json:"price,omitempty"`
	Reference    fixedpoint.Price `json:"reference,omitempty"`
	SourceID     string           `json:"source_id,omitempty"`
	DeviationBps uint64           `json:"deviation_bps,omitempty"`
	Timestamp    uint64           `json:"timestamp"`
}

// EventSink receives engine events. Publish is called with the engine lock
// held and must not block.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Publish calls f.
func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Publish forwards e to every sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
