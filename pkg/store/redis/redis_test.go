package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/store"
)

func newStore(t *testing.T) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "test", time.Second, nil), mr
}

func snapshot(t *testing.T) engine.State {
	t.Helper()
	e, err := engine.New("USDP/USD", engine.DefaultParameters(),
		engine.WithHistoryCapacity(4),
		engine.WithSources(engine.SourceConfig{ID: "a", ExternalRef: "static.fixed", Active: true, Weight: 100}))
	require.NoError(t, err)
	_, err = e.RunUpdateCycle([]aggregator.Sample{
		{SourceID: "a", Price: 100_000_000},
		{SourceID: "b", Price: 100_200_000, Weight: 1},
	}, 1000)
	require.NoError(t, err)
	require.NoError(t, e.SetEmergencyPrice(fixedpoint.Price(99_000_000)))
	return e.Snapshot()
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, ok, err := s.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := snapshot(t)
	require.NoError(t, s.Save(ctx, "USDP/USD", snap))
	assert.True(t, mr.Exists("test:state:USDP/USD"))

	loaded, ok, err := s.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, loaded)

	e, err := engine.New("USDP/USD", engine.DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, e.Restore(loaded))
	assert.Equal(t, snap.Latest, e.LatestAggregate())
}

func TestLoadCorrupt(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, mr.Set("test:state:USDP/USD", "{not json"))

	_, _, err := s.Load(context.Background(), "USDP/USD")
	assert.Error(t, err)
}

func TestRequiresSymbol(t *testing.T) {
	s, _ := newStore(t)
	assert.ErrorIs(t, s.Save(context.Background(), "", engine.State{}), store.ErrSymbolRequired)
	_, _, err := s.Load(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrSymbolRequired)
}

func TestUnavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	assert.Error(t, s.Ping(context.Background()))
	assert.Error(t, s.Save(context.Background(), "USDP/USD", snapshot(t)))
}
