package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

// Cycle outcomes reported to metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// ErrFeedExists is returned when a symbol is added twice.
	ErrFeedExists = errors.New("feed already exists")
	// ErrFeedNotFound is returned for unknown symbols.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrAlreadyStarted is returned by Start on a running updater.
	ErrAlreadyStarted = errors.New("updater already started")
)

// Updater schedules update cycles for a set of feeds.
type Updater struct {
	mu    sync.RWMutex
	feeds map[string]*Feed

	states store.StateStore
	audit  store.AuditLog
	logger *logging.Logger
	clock  func() time.Time
	newID  func() uuid.UUID

	cron *cron.Cron
}

// Option configures an Updater.
type Option func(*Updater)

// WithStateStore persists a snapshot after every completed cycle.
func WithStateStore(s store.StateStore) Option {
	return func(u *Updater) {
		if s != nil {
			u.states = s
		}
	}
}

// WithAuditLog records every completed cycle.
func WithAuditLog(a store.AuditLog) Option {
	return func(u *Updater) {
		if a != nil {
			u.audit = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithClock overrides the cycle timestamp source.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		if now != nil {
			u.clock = now
		}
	}
}

// New creates an updater with an in-memory state store and no audit log.
func New(opts ...Option) *Updater {
	u := &Updater{
		feeds:  make(map[string]*Feed),
		states: store.NewMemory(),
		audit:  store.Nop{},
		logger: logging.NewNoopLogger(),
		clock:  time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// AddFeed registers a feed.
func (u *Updater) AddFeed(f *Feed) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.feeds[f.Symbol()]; ok {
		return fmt.Errorf("%w: %s", ErrFeedExists, f.Symbol())
	}
	u.feeds[f.Symbol()] = f
	return nil
}

// Feed returns the feed for symbol.
func (u *Updater) Feed(symbol string) (*Feed, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	f, ok := u.feeds[symbol]
	return f, ok
}

// Feeds returns all feeds sorted by symbol.
func (u *Updater) Feeds() []*Feed {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Feed, 0, len(u.feeds))
	for _, f := range u.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol() < out[j].Symbol() })
	return out
}

// Engine returns the engine of symbol.
func (u *Updater) Engine(symbol string) (*engine.Engine, bool) {
	f, ok := u.Feed(symbol)
	if !ok {
		return nil, false
	}
	return f.engine, true
}

// Symbols returns the feed symbols in order.
func (u *Updater) Symbols() []string {
	feeds := u.Feeds()
	out := make([]string, len(feeds))
	for i, f := range feeds {
		out[i] = f.Symbol()
	}
	return out
}

// Persist saves the current state of symbol. Admin changes go through here so
// they survive a restart.
func (u *Updater) Persist(ctx context.Context, symbol string) error {
	f, ok := u.Feed(symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, symbol)
	}
	return u.save(ctx, f)
}

// save writes the current engine state. Snapshot and write happen under the
// feed's save lock so a later save always carries the newer state.
func (u *Updater) save(ctx context.Context, f *Feed) error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()
	return u.states.Save(ctx, f.Symbol(), f.engine.Snapshot())
}

// Restore loads the persisted state of every feed. Feeds with nothing saved
// keep their configured state.
func (u *Updater) Restore(ctx context.Context) error {
	for _, f := range u.Feeds() {
		st, ok, err := u.states.Load(ctx, f.Symbol())
		if err != nil {
			return fmt.Errorf("load %s: %w", f.Symbol(), err)
		}
		if !ok {
			continue
		}
		if err := f.engine.Restore(st); err != nil {
			return fmt.Errorf("restore %s: %w", f.Symbol(), err)
		}
		u.logger.Info("Feed state restored", "symbol", f.Symbol(), "price", st.Latest.Price.String(), "history", st.History.Count)
	}
	return nil
}

// RunOnce performs one update cycle for symbol.
func (u *Updater) RunOnce(ctx context.Context, symbol string) (engine.CycleResult, error) {
	f, ok := u.Feed(symbol)
	if !ok {
		return engine.CycleResult{}, fmt.Errorf("%w: %s", ErrFeedNotFound, symbol)
	}
	return u.runFeed(ctx, f)
}

// RunAll performs one cycle for every feed and returns the joined errors.
func (u *Updater) RunAll(ctx context.Context) error {
	var errs []error
	for _, f := range u.Feeds() {
		if _, err := u.runFeed(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Symbol(), err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) runFeed(ctx context.Context, f *Feed) (engine.CycleResult, error) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	symbol := f.Symbol()
	samples := f.Collect(ctx)
	now := uint64(u.clock().Unix())

	res, err := f.engine.RunUpdateCycle(samples, now)
	if err != nil {
		metrics.RecordCycle(symbol, OutcomeFailed)
		u.logger.Warn("Update cycle failed", "symbol", symbol, "samples", len(samples), "error", err)
		return res, err
	}

	outcome := OutcomeAccepted
	if !res.Accepted {
		outcome = OutcomeRejected
	}
	metrics.RecordCycle(symbol, outcome)

	if err := u.save(ctx, f); err != nil {
		u.logger.Error("Failed to save state", "symbol", symbol, "error", err)
	}
	u.recordAudit(ctx, symbol, samples, res, now)
	u.recordMetrics(f, now)

	return res, nil
}

func (u *Updater) recordAudit(ctx context.Context, symbol string, samples []aggregator.Sample, res engine.CycleResult, now uint64) {
	id := u.newID()
	if err := u.audit.RecordCycle(ctx, store.NewCycleRecord(id, symbol, res, now)); err != nil {
		u.logger.Error("Failed to record cycle", "symbol", symbol, "cycle", id.String(), "error", err)
		return
	}
	for _, rec := range store.NewSourceRecords(id, symbol, samples, res, now) {
		if err := u.audit.RecordSource(ctx, rec); err != nil {
			u.logger.Error("Failed to record source", "symbol", symbol, "cycle", id.String(), "source", rec.SourceID, "error", err)
		}
	}
}

func (u *Updater) recordMetrics(f *Feed, now uint64) {
	symbol := f.Symbol()
	metrics.RecordBreakerState(symbol, f.engine.BreakerState().Tripped)

	latest := f.engine.LatestAggregate()
	if latest.Price.IsZero() {
		return
	}
	var age time.Duration
	if now > latest.Timestamp {
		age = time.Duration(now-latest.Timestamp) * time.Second
	}
	price, _ := latest.Price.Decimal().Float64()
	metrics.RecordLatestPrice(symbol, price, age)
}

// Start schedules every feed on its cron schedule.
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{u.logger})))
	for _, f := range u.feeds {
		f := f
		if _, err := c.AddFunc(f.schedule, func() {
			_, _ = u.runFeed(ctx, f)
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", f.Symbol(), f.schedule, err)
		}
		u.logger.Info("Feed scheduled", "symbol", f.Symbol(), "schedule", f.schedule)
	}
	c.Start()
	u.cron = c
	return nil
}

// Stop stops scheduling and waits for running cycles to finish.
func (u *Updater) Stop() {
	u.mu.Lock()
	c := u.cron
	u.cron = nil
	u.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	u.logger.Info("Updater stopped")
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
