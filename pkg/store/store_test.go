package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
)

func samples(prices ...uint64) []aggregator.Sample {
	ids := []string{"a", "b", "c", "d", "e"}
	out := make([]aggregator.Sample, len(prices))
	for i, p := range prices {
		out[i] = aggregator.Sample{SourceID: ids[i], Price: fixedpoint.Price(p), Weight: 1}
	}
	return out
}

func acceptedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New("USDP/USD", engine.DefaultParameters())
	require.NoError(t, err)
	_, err = e.RunUpdateCycle(samples(100_000_000, 100_200_000, 100_100_000), 1000)
	require.NoError(t, err)
	return e
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := acceptedEngine(t).Snapshot()
	require.NoError(t, m.Save(ctx, "USDP/USD", snap))

	loaded, ok, err := m.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, loaded)

	restored, err := engine.New("USDP/USD", engine.DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(loaded))
	assert.Equal(t, fixedpoint.Price(100_100_000), restored.LatestAggregate().Price)
}

func TestMemoryCopiesState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	snap := acceptedEngine(t).Snapshot()
	require.NoError(t, m.Save(ctx, "USDP/USD", snap))
	snap.History.Slots[0].Price = 1

	loaded, _, err := m.Load(ctx, "USDP/USD")
	require.NoError(t, err)
	assert.NotEqual(t, fixedpoint.Price(1), loaded.History.Slots[0].Price)
}

func TestMemoryRequiresSymbol(t *testing.T) {
	m := NewMemory()
	assert.ErrorIs(t, m.Save(context.Background(), "", engine.State{}), ErrSymbolRequired)
	_, _, err := m.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrSymbolRequired)
}

func TestRecordsFromCycle(t *testing.T) {
	e, err := engine.New("USDP/USD", engine.DefaultParameters())
	require.NoError(t, err)

	batch := samples(100_000_000, 100_100_000, 99_900_000, 110_000_000)
	res, err := e.RunUpdateCycle(batch, 1000)
	require.NoError(t, err)

	id := uuid.New()
	cycle := NewCycleRecord(id, "USDP/USD", res, 1000)
	assert.Equal(t, id, cycle.ID)
	assert.True(t, cycle.Accepted)
	assert.Equal(t, res.Price, cycle.Price)
	assert.Equal(t, 3, cycle.ValidSources)
	assert.Equal(t, int64(1000), cycle.ObservedAt)
	assert.Empty(t, cycle.RejectReason)

	recs := NewSourceRecords(id, "USDP/USD", batch, res, 1000)
	require.Len(t, recs, 4)
	for _, r := range recs {
		assert.Equal(t, id, r.CycleID)
		assert.Equal(t, r.SourceID == "d", r.Outlier, r.SourceID)
	}
}

func TestNopAuditLog(t *testing.T) {
	var log AuditLog = Nop{}
	assert.NoError(t, log.RecordCycle(context.Background(), CycleRecord{}))
	assert.NoError(t, log.RecordSource(context.Background(), SourceRecord{}))
}
