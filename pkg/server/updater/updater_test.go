package updater

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Initialize(ctx context.Context) error { return nil }
func (m *mockSource) Start(ctx context.Context) error      { return nil }
func (m *mockSource) Stop() error                          { return nil }
func (m *mockSource) Name() string                         { return "mock" }
func (m *mockSource) Type() sources.SourceType             { return sources.SourceTypeStatic }
func (m *mockSource) Symbols() []string                    { return []string{"USDP/USD"} }
func (m *mockSource) IsHealthy() bool                      { return true }
func (m *mockSource) LastUpdate() time.Time                { return time.Time{} }

func (m *mockSource) FetchPrice(ctx context.Context, symbol string) (fixedpoint.Price, error) {
	args := m.Called(ctx, symbol)
	if fn, ok := args.Get(0).(func(context.Context, string) fixedpoint.Price); ok {
		return fn(ctx, symbol), args.Error(1)
	}
	return args.Get(0).(fixedpoint.Price), args.Error(1)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) RecordCycle(ctx context.Context, rec store.CycleRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockAudit) RecordSource(ctx context.Context, rec store.SourceRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func priceSource(p uint64) *mockSource {
	s := &mockSource{}
	s.On("FetchPrice", mock.Anything, "USDP/USD").Return(fixedpoint.Price(p), nil)
	return s
}

func newFeed(t *testing.T, bindings map[string]sources.Source, regs ...engine.SourceConfig) *Feed {
	t.Helper()
	e, err := engine.New("USDP/USD", engine.DefaultParameters(), engine.WithSources(regs...))
	require.NoError(t, err)
	f, err := NewFeed(e, bindings, "@every 1s", time.Second, nil)
	require.NoError(t, err)
	return f
}

func reg(id string, weight uint64, active bool) engine.SourceConfig {
	return engine.SourceConfig{ID: id, ExternalRef: "static." + id, Active: active, Weight: weight}
}

// gatedStore blocks the first Save until release is closed.
type gatedStore struct {
	*store.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{Memory: store.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Save(ctx context.Context, symbol string, st engine.State) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Memory.Save(ctx, symbol, st)
}

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func TestCollectSkipsFailuresAndInactive(t *testing.T) {
	failing := &mockSource{}
	failing.On("FetchPrice", mock.Anything, "USDP/USD").Return(fixedpoint.Zero, errors.New("boom"))
	inactive := &mockSource{}

	f := newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": failing,
		"static.c": priceSource(100_200_000),
		"static.d": inactive,
	}, reg("a", 1, true), reg("b", 1, true), reg("c", 3, true), reg("d", 1, false), reg("e", 1, true))

	samples := f.Collect(context.Background())
	require.Len(t, samples, 2)
	assert.Equal(t, "a", samples[0].SourceID)
	assert.Equal(t, "c", samples[1].SourceID)
	assert.Equal(t, uint64(3), samples[1].Weight)
	inactive.AssertNotCalled(t, "FetchPrice", mock.Anything, mock.Anything)
	failing.AssertExpectations(t)
}

func TestCollectTimeout(t *testing.T) {
	slow := &mockSource{}
	slow.On("FetchPrice", mock.Anything, "USDP/USD").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(fixedpoint.Zero, context.DeadlineExceeded)

	e, err := engine.New("USDP/USD", engine.DefaultParameters(), engine.WithSources(reg("a", 1, true), reg("b", 1, true)))
	require.NoError(t, err)
	f, err := NewFeed(e, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": slow,
	}, "@every 1s", 50*time.Millisecond, nil)
	require.NoError(t, err)

	samples := f.Collect(context.Background())
	require.Len(t, samples, 1)
	assert.Equal(t, "a", samples[0].SourceID)
}

func TestRunOnceAcceptsAndPersists(t *testing.T) {
	states := store.NewMemory()
	audit := &mockAudit{}
	audit.On("RecordCycle", mock.Anything, mock.MatchedBy(func(r store.CycleRecord) bool {
		return r.Symbol == "USDP/USD" && r.Accepted && r.ObservedAt == 1000
	})).Return(nil).Once()
	audit.On("RecordSource", mock.Anything, mock.AnythingOfType("store.SourceRecord")).Return(nil).Times(3)

	u := New(WithStateStore(states), WithAuditLog(audit), WithClock(fixedClock(1000)))
	f := newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": priceSource(100_200_000),
		"static.c": priceSource(100_100_000),
	}, reg("a", 1, true), reg("b", 1, true), reg("c", 1, true))
	require.NoError(t, u.AddFeed(f))

	res, err := u.RunOnce(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, fixedpoint.Price(100_100_000), res.Price)

	saved, ok, err := states.Load(context.Background(), "USDP/USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixedpoint.Price(100_100_000), saved.Latest.Price)
	assert.Equal(t, uint64(1000), saved.Latest.Timestamp)
	audit.AssertExpectations(t)
}

func TestRunOnceInsufficientSources(t *testing.T) {
	states := store.NewMemory()
	audit := &mockAudit{}
	u := New(WithStateStore(states), WithAuditLog(audit), WithClock(fixedClock(1000)))
	require.NoError(t, u.AddFeed(newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
	}, reg("a", 1, true), reg("b", 1, true))))

	_, err := u.RunOnce(context.Background(), "USDP/USD")
	assert.ErrorIs(t, err, engine.ErrInsufficientSources)

	_, ok, err := states.Load(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.False(t, ok)
	audit.AssertNotCalled(t, "RecordCycle", mock.Anything, mock.Anything)
}

func TestRunOnceBreakerRejection(t *testing.T) {
	audit := &mockAudit{}
	audit.On("RecordCycle", mock.Anything, mock.Anything).Return(nil)
	audit.On("RecordSource", mock.Anything, mock.Anything).Return(nil)

	var mu sync.Mutex
	price := uint64(100_000_000)
	src := &mockSource{}
	src.On("FetchPrice", mock.Anything, "USDP/USD").Return(func(context.Context, string) fixedpoint.Price {
		mu.Lock()
		defer mu.Unlock()
		return fixedpoint.Price(price)
	}, nil)

	u := New(WithAuditLog(audit), WithClock(fixedClock(1000)))
	require.NoError(t, u.AddFeed(newFeed(t, map[string]sources.Source{
		"static.a": src,
		"static.b": src,
	}, reg("a", 1, true), reg("b", 1, true))))

	res, err := u.RunOnce(context.Background(), "USDP/USD")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	mu.Lock()
	price = 115_000_000
	mu.Unlock()

	res, err = u.RunOnce(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, engine.ReasonCircuitBreaker, res.RejectReason)
	audit.AssertCalled(t, "RecordCycle", mock.Anything, mock.MatchedBy(func(r store.CycleRecord) bool {
		return !r.Accepted && r.RejectReason == string(engine.ReasonCircuitBreaker)
	}))
}

func TestRunOnceAuditFailureDoesNotFailCycle(t *testing.T) {
	audit := &mockAudit{}
	audit.On("RecordCycle", mock.Anything, mock.Anything).Return(errors.New("db down"))

	u := New(WithAuditLog(audit), WithClock(fixedClock(1000)))
	u.newID = func() uuid.UUID { return uuid.MustParse("00000000-0000-0000-0000-000000000001") }
	require.NoError(t, u.AddFeed(newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": priceSource(100_000_000),
	}, reg("a", 1, true), reg("b", 1, true))))

	res, err := u.RunOnce(context.Background(), "USDP/USD")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	audit.AssertNotCalled(t, "RecordSource", mock.Anything, mock.Anything)
}

func TestRunOnceUnknownFeed(t *testing.T) {
	u := New()
	_, err := u.RunOnce(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, ErrFeedNotFound)
}

func TestAddFeedDuplicate(t *testing.T) {
	u := New()
	require.NoError(t, u.AddFeed(newFeed(t, nil)))
	assert.ErrorIs(t, u.AddFeed(newFeed(t, nil)), ErrFeedExists)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemory()

	first := New(WithStateStore(states), WithClock(fixedClock(1000)))
	require.NoError(t, first.AddFeed(newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": priceSource(100_000_000),
	}, reg("a", 1, true), reg("b", 1, true))))
	_, err := first.RunOnce(ctx, "USDP/USD")
	require.NoError(t, err)

	second := New(WithStateStore(states))
	f := newFeed(t, nil, reg("a", 1, true), reg("b", 1, true))
	require.NoError(t, second.AddFeed(f))
	require.NoError(t, second.Restore(ctx))

	assert.Equal(t, fixedpoint.Price(100_000_000), f.Engine().LatestAggregate().Price)
	assert.Len(t, f.Engine().History(0), 1)
}

func TestStartStop(t *testing.T) {
	u := New(WithClock(fixedClock(1000)))
	src := priceSource(100_000_000)
	require.NoError(t, u.AddFeed(newFeed(t, map[string]sources.Source{
		"static.a": src,
		"static.b": src,
	}, reg("a", 1, true), reg("b", 1, true))))

	require.NoError(t, u.Start(context.Background()))
	assert.ErrorIs(t, u.Start(context.Background()), ErrAlreadyStarted)

	f, _ := u.Feed("USDP/USD")
	assert.Eventually(t, func() bool {
		return !f.Engine().LatestAggregate().Price.IsZero()
	}, 3*time.Second, 50*time.Millisecond)

	u.Stop()
	u.Stop()
}

func TestStartInvalidSchedule(t *testing.T) {
	e, err := engine.New("USDP/USD", engine.DefaultParameters())
	require.NoError(t, err)
	f, err := NewFeed(e, nil, "not a schedule", 0, nil)
	require.NoError(t, err)

	u := New()
	require.NoError(t, u.AddFeed(f))
	assert.Error(t, u.Start(context.Background()))
}

func TestNewFeedRequiresEngine(t *testing.T) {
	_, err := NewFeed(nil, nil, "@every 1s", 0, nil)
	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestRegistryAccessors(t *testing.T) {
	ctx := context.Background()
	states := store.NewMemory()
	u := New(WithStateStore(states))
	f := newFeed(t, nil, reg("a", 1, true))
	require.NoError(t, u.AddFeed(f))

	e, ok := u.Engine("USDP/USD")
	require.True(t, ok)
	assert.Same(t, f.Engine(), e)
	assert.Equal(t, []string{"USDP/USD"}, u.Symbols())

	require.NoError(t, e.SetEmergencyPrice(fixedpoint.Price(100_000_000)))
	require.NoError(t, u.Persist(ctx, "USDP/USD"))
	saved, ok, err := states.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixedpoint.Price(100_000_000), saved.EmergencyPrice)

	assert.ErrorIs(t, u.Persist(ctx, "BTC/USD"), ErrFeedNotFound)
}

func TestPersistWaitsForCycleSave(t *testing.T) {
	ctx := context.Background()
	states := newGatedStore()
	u := New(WithStateStore(states), WithClock(fixedClock(1000)))
	f := newFeed(t, map[string]sources.Source{
		"static.a": priceSource(100_000_000),
		"static.b": priceSource(100_000_000),
	}, reg("a", 1, true), reg("b", 1, true))
	require.NoError(t, u.AddFeed(f))

	cycleErr := make(chan error, 1)
	go func() {
		_, err := u.RunOnce(ctx, "USDP/USD")
		cycleErr <- err
	}()
	<-states.entered

	// admin change lands while the cycle is writing its older snapshot
	f.Engine().SetPaused(true)
	persistErr := make(chan error, 1)
	go func() { persistErr <- u.Persist(ctx, "USDP/USD") }()

	select {
	case <-persistErr:
		t.Fatal("admin save overtook the cycle save")
	case <-time.After(50 * time.Millisecond):
	}

	close(states.release)
	require.NoError(t, <-cycleErr)
	require.NoError(t, <-persistErr)

	saved, ok, err := states.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.Paused)
	assert.Equal(t, fixedpoint.Price(100_000_000), saved.Latest.Price)
}
