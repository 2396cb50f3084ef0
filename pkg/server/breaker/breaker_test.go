package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

func TestEvaluate_FirstCandidateAlwaysAccepted(t *testing.T) {
	next, d := Evaluate(State{}, 500_000_000, 1000, 10)
	assert.True(t, d.Accepted)
	assert.False(t, d.Tripped)
	assert.Equal(t, fixedpoint.Price(500_000_000), next.LastAcceptedPrice)
	assert.Equal(t, Normal, next.Status())
}

func TestEvaluate_WithinThreshold(t *testing.T) {
	s := State{LastAcceptedPrice: 100_000_000}
	next, d := Evaluate(s, 110_000_000, 1000, 10)
	assert.True(t, d.Accepted, "deviation equal to threshold is accepted")
	assert.Equal(t, uint64(1000), d.DeviationBps)
	assert.Equal(t, fixedpoint.Price(110_000_000), next.LastAcceptedPrice)
	assert.False(t, next.Tripped)
}

func TestEvaluate_TripsAboveThreshold(t *testing.T) {
	s := State{LastAcceptedPrice: 100_000_000}
	next, d := Evaluate(s, 115_000_000, 1000, 42)
	assert.False(t, d.Accepted)
	assert.True(t, d.Tripped)
	assert.Equal(t, uint64(1500), d.DeviationBps)
	assert.True(t, next.Tripped)
	assert.Equal(t, fixedpoint.Price(100_000_000), next.LastAcceptedPrice, "rejected candidate is not adopted")
	assert.Equal(t, uint64(42), next.LastTransitionTime)

	// input state is untouched
	assert.False(t, s.Tripped)
}

func TestEvaluate_StaysTrippedUntilReset(t *testing.T) {
	s := State{Tripped: true, LastAcceptedPrice: 100_000_000, LastTransitionTime: 5}
	next, d := Evaluate(s, 100_000_000, 1000, 10)
	assert.False(t, d.Accepted)
	assert.False(t, d.Tripped, "already tripped, no new transition")
	assert.Equal(t, s, next)

	reset := Reset(next, 20)
	assert.Equal(t, Normal, reset.Status())
	assert.Equal(t, uint64(20), reset.LastTransitionTime)
	assert.Equal(t, fixedpoint.Price(100_000_000), reset.LastAcceptedPrice)

	_, d = Evaluate(reset, 101_000_000, 1000, 30)
	assert.True(t, d.Accepted)
}

func TestReset_NormalIsNoop(t *testing.T) {
	s := State{LastAcceptedPrice: 1, LastTransitionTime: 3}
	assert.Equal(t, s, Reset(s, 99))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "tripped", Tripped.String())
	assert.Equal(t, "unknown", Status(7).String())
}
