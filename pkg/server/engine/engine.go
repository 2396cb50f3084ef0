// Package engine orchestrates the update cycle of one price feed: the median
// filter, weighted aggregation, circuit breaker and TWAP history, plus the
// read-side staleness and validity rules.
//
// Update cycles and administrative mutations are serialized by a mutex and
// applied to a private copy of the state, which is published atomically only
// when the whole operation succeeded. Reads load the last published state and
// never take the lock.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/breaker"
	"github.com/epayprotocol/oracle-usdp/pkg/server/twap"
)

// RejectReason explains why a completed cycle did not publish a price.
type RejectReason string

const (
	// ReasonCircuitBreaker means the breaker rejected the candidate.
	ReasonCircuitBreaker RejectReason = "circuit_breaker"
)

// CycleResult is the outcome of a completed update cycle.
type CycleResult struct {
	Accepted         bool                 `json:"accepted"`
	Price            fixedpoint.Price     `json:"price"`
	Median           fixedpoint.Price     `json:"median"`
	ValidSourceCount int                  `json:"valid_source_count"`
	DeviationBps     uint64               `json:"deviation_bps"`
	RejectReason     RejectReason         `json:"reject_reason,omitempty"`
	Outliers         []aggregator.Outlier `json:"outliers,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryCapacity sets the TWAP ring capacity.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithAggregateMode selects the final aggregation mode (average or median).
func WithAggregateMode(mode string) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventSink sets the event sink.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithSources seeds the source registry.
func WithSources(sources ...SourceConfig) Option {
	return func(e *Engine) { e.seed = append(e.seed, sources...) }
}

// WithClock sets the clock used to stamp administrative events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

// Engine is the oracle state machine for one symbol.
type Engine struct {
	symbol   string
	capacity int
	mode     string
	seed     []SourceConfig
	logger   *logging.Logger
	sink     EventSink
	clock    func() time.Time
	agg      *aggregator.Aggregator

	mu      sync.Mutex
	current atomic.Pointer[committed]
}

// New creates an engine with no accepted price and a Normal breaker.
func New(symbol string, params Parameters, opts ...Option) (*Engine, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		symbol:   symbol,
		capacity: twap.DefaultCapacity,
		logger:   logging.NewNoopLogger(),
		sink:     nopSink{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("symbol", symbol)

	agg, err := aggregator.NewAggregator(symbol, e.mode, e.logger)
	if err != nil {
		return nil, err
	}
	e.agg = agg

	c := &committed{
		params:  params,
		history: twap.New(e.capacity),
	}
	for _, src := range e.seed {
		if err := validateSource(src); err != nil {
			return nil, err
		}
		if c.sourceIndex(src.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrSourceExists, src.ID)
		}
		c.sources = append(c.sources, src)
	}
	e.seed = nil
	e.current.Store(c)

	return e, nil
}

// Symbol returns the feed symbol.
func (e *Engine) Symbol() string {
	return e.symbol
}

// RunUpdateCycle aggregates one batch of samples taken at now.
//
// Samples with a zero price are ignored. Samples from a registered source that
// is inactive are ignored, and a zero sample weight is replaced by the
// registered weight. Failures leave the state unchanged; a breaker rejection
// commits the breaker state and the source audit trail only.
func (e *Engine) RunUpdateCycle(samples []aggregator.Sample, now uint64) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()

	usable := make([]aggregator.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Price.IsZero() {
			continue
		}
		if i := cur.sourceIndex(s.SourceID); i >= 0 {
			src := cur.sources[i]
			if !src.Active {
				continue
			}
			if s.Weight == 0 {
				s.Weight = src.Weight
			}
		}
		usable = append(usable, s)
	}

	if len(usable) < cur.params.MinSourcesRequired {
		e.logger.Warn("Insufficient sources for update cycle",
			"usable", len(usable),
			"required", cur.params.MinSourcesRequired)
		return CycleResult{}, fmt.Errorf("%w: %d usable, %d required",
			ErrInsufficientSources, len(usable), cur.params.MinSourcesRequired)
	}

	res, err := e.agg.Aggregate(usable, cur.params.PriceDeviationThresholdBps)
	if err != nil {
		return CycleResult{}, fmt.Errorf("aggregate %s: %w", e.symbol, err)
	}

	next := cur.clone()
	nextBreaker, decision := breaker.Evaluate(cur.breaker, res.Price, cur.params.CircuitBreakerThresholdBps, now)
	next.breaker = nextBreaker
	for _, s := range usable {
		if i := next.sourceIndex(s.SourceID); i >= 0 {
			next.sources[i].LastPrice = s.Price
			next.sources[i].LastUpdateTime = now
		}
	}

	result := CycleResult{
		Price:            res.Price,
		Median:           res.Median,
		ValidSourceCount: len(res.Inliers),
		DeviationBps:     decision.DeviationBps,
		Outliers:         res.Outliers,
	}

	if !decision.Accepted {
		e.current.Store(next)
		result.RejectReason = ReasonCircuitBreaker

		if decision.Tripped {
			e.logger.Warn("Circuit breaker tripped",
				"candidate", res.Price.String(),
				"reference", cur.breaker.LastAcceptedPrice.String(),
				"deviation_bps", decision.DeviationBps,
				"threshold_bps", cur.params.CircuitBreakerThresholdBps)
			e.publish(Event{
				Kind:         EventCircuitBreakerTripped,
				Price:        res.Price,
				Reference:    cur.breaker.LastAcceptedPrice,
				DeviationBps: decision.DeviationBps,
				Timestamp:    now,
			})
		}
		e.publish(Event{
			Kind:         EventCycleRejected,
			Price:        res.Price,
			Reference:    next.breaker.LastAcceptedPrice,
			DeviationBps: decision.DeviationBps,
			Timestamp:    now,
		})
		return result, nil
	}

	next.latest = Aggregate{
		Price:            res.Price,
		Timestamp:        now,
		ValidSourceCount: len(res.Inliers),
	}
	next.history.Push(res.Price, now)
	e.current.Store(next)

	result.Accepted = true
	e.logger.Debug("Price updated",
		"price", res.Price.String(),
		"median", res.Median.String(),
		"sources", len(res.Inliers),
		"outliers", len(res.Outliers))

	e.publish(Event{
		Kind:         EventPriceUpdated,
		Price:        res.Price,
		Reference:    cur.breaker.LastAcceptedPrice,
		DeviationBps: decision.DeviationBps,
		Timestamp:    now,
	})
	for _, o := range res.Outliers {
		e.publish(Event{
			Kind:         EventOutlierDetected,
			Price:        o.Price,
			Reference:    res.Median,
			SourceID:     o.SourceID,
			DeviationBps: o.DeviationBps,
			Timestamp:    now,
		})
	}

	return result, nil
}

// QueryLatest returns the published price. While paused it returns the
// emergency price before any other check.
func (e *Engine) QueryLatest(now uint64) (fixedpoint.Price, error) {
	c := e.current.Load()

	if c.paused {
		if c.emergencyPrice.IsZero() {
			return fixedpoint.Zero, fmt.Errorf("%w: paused without emergency price", ErrNoPriceAvailable)
		}
		return c.emergencyPrice, nil
	}
	if c.breaker.Tripped {
		return fixedpoint.Zero, ErrCircuitBreakerActive
	}
	if c.latest.Price.IsZero() {
		return fixedpoint.Zero, ErrNoPriceAvailable
	}
	if isStale(c, now) {
		return fixedpoint.Zero, fmt.Errorf("%w: updated at %d, now %d, max age %d",
			ErrPriceStale, c.latest.Timestamp, now, c.params.MaxPriceAge)
	}
	return c.latest.Price, nil
}

// QueryWithValidity returns the published price and whether it can be
// trusted. It never fails.
func (e *Engine) QueryWithValidity(now uint64) (fixedpoint.Price, bool) {
	c := e.current.Load()

	if c.paused {
		return c.emergencyPrice, false
	}
	valid := !c.breaker.Tripped &&
		!c.latest.Price.IsZero() &&
		!isStale(c, now) &&
		c.latest.ValidSourceCount >= c.params.MinSourcesRequired
	return c.latest.Price, valid
}

// QueryTwap returns the time-weighted average over window seconds ending at
// now. A zero or oversized window uses the configured TWAP period. Without
// history coverage it falls back to the last accepted price.
func (e *Engine) QueryTwap(window, now uint64) fixedpoint.Price {
	c := e.current.Load()
	if p, ok := c.history.Query(window, now, c.params.TwapPeriod); ok {
		return p
	}
	return c.latest.Price
}

// LatestAggregate returns the last accepted aggregate.
func (e *Engine) LatestAggregate() Aggregate {
	return e.current.Load().latest
}

// BreakerState returns the breaker state.
func (e *Engine) BreakerState() breaker.State {
	return e.current.Load().breaker
}

// Parameters returns the current parameters.
func (e *Engine) Parameters() Parameters {
	return e.current.Load().params
}

// Paused reports whether the feed is paused.
func (e *Engine) Paused() bool {
	return e.current.Load().paused
}

// EmergencyPrice returns the configured emergency price.
func (e *Engine) EmergencyPrice() fixedpoint.Price {
	return e.current.Load().emergencyPrice
}

// History returns up to limit of the most recent accepted entries, oldest
// first.
func (e *Engine) History(limit int) []twap.Entry {
	return e.current.Load().history.Entries(limit)
}

// Sources returns a copy of the source registry.
func (e *Engine) Sources() []SourceConfig {
	c := e.current.Load()
	out := make([]SourceConfig, len(c.sources))
	copy(out, c.sources)
	return out
}

// Snapshot returns a deep copy of the committed state.
func (e *Engine) Snapshot() State {
	return e.current.Load().export(e.symbol)
}

// Restore installs a previously saved state verbatim.
func (e *Engine) Restore(s State) error {
	if s.Symbol != "" && s.Symbol != e.symbol {
		return fmt.Errorf("%w: state for %s loaded into %s", ErrInvalidState, s.Symbol, e.symbol)
	}
	c, err := importState(s)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if configured := e.current.Load().history.Cap(); c.history.Cap() != configured {
		e.logger.Warn("Persisted history capacity differs from configuration, keeping persisted ring",
			"persisted", c.history.Cap(),
			"configured", configured)
	}
	e.current.Store(c)

	e.logger.Info("Restored engine state",
		"price", c.latest.Price.String(),
		"updated_at", c.latest.Timestamp,
		"history", c.history.Len(),
		"breaker", c.breaker.Status().String())
	return nil
}

func (e *Engine) publish(ev Event) {
	ev.Symbol = e.symbol
	e.sink.Publish(ev)
}

func (e *Engine) unixNow() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func isStale(c *committed, now uint64) bool {
	return now > c.latest.Timestamp && now-c.latest.Timestamp > c.params.MaxPriceAge
}
