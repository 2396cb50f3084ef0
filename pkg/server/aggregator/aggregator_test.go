package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/logging"
)

func samplesOf(prices ...fixedpoint.Price) []Sample {
	out := make([]Sample, len(prices))
	for i, p := range prices {
		out[i] = Sample{SourceID: string(rune('a' + i)), Price: p, Weight: 100}
	}
	return out
}

func TestMedian_OddCount(t *testing.T) {
	assert.Equal(t, fixedpoint.Price(100_000_000), Median([]fixedpoint.Price{100_500_000, 100_000_000, 99_800_000}))
	assert.Equal(t, fixedpoint.Price(7), Median([]fixedpoint.Price{9, 1, 7, 7, 8}))
}

func TestMedian_EvenCountTruncates(t *testing.T) {
	assert.Equal(t, fixedpoint.Price(150_000_000), Median([]fixedpoint.Price{200_000_000, 100_000_000}))
	assert.Equal(t, fixedpoint.Price(2), Median([]fixedpoint.Price{1, 2, 3, 4}), "(2+3)/2 truncates to 2")
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	in := []fixedpoint.Price{3, 1, 2}
	Median(in)
	assert.Equal(t, []fixedpoint.Price{3, 1, 2}, in)
}

func TestClassify_Empty(t *testing.T) {
	_, err := Classify(nil, 500)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestClassify_SingleSample(t *testing.T) {
	c, err := Classify(samplesOf(123), 0)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(123), c.Median)
	require.Len(t, c.Inliers, 1)
	assert.Empty(t, c.Outliers)
}

func TestClassify_BoundaryIsInclusive(t *testing.T) {
	// median 100000000; 105000000 deviates exactly 500 bps, 105000001 slightly more
	c, err := Classify(samplesOf(95_000_000, 100_000_000, 105_000_000), 500)
	require.NoError(t, err)
	assert.Len(t, c.Inliers, 3)
	assert.Empty(t, c.Outliers)

	c, err = Classify(samplesOf(100_000_000, 100_000_000, 105_010_001), 500)
	require.NoError(t, err)
	assert.Len(t, c.Inliers, 2)
	require.Len(t, c.Outliers, 1)
	assert.Equal(t, 2, c.Outliers[0].Index)
	assert.Equal(t, "c", c.Outliers[0].SourceID)
	assert.Equal(t, uint64(501), c.Outliers[0].DeviationBps)
}

func TestClassify_ZeroMedian(t *testing.T) {
	c, err := Classify(samplesOf(0, 0, 5), 500)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Zero, c.Median)
	assert.Len(t, c.Inliers, 2)
	require.Len(t, c.Outliers, 1)
	assert.Equal(t, fixedpoint.Price(5), c.Outliers[0].Price)
}

func TestWeightedAverage(t *testing.T) {
	p, err := WeightedAverage([]Sample{
		{SourceID: "a", Price: 100_000_000, Weight: 2},
		{SourceID: "b", Price: 130_000_000, Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(110_000_000), p)

	// 10*1 + 11*1 = 21 / 2 -> 10
	p, err = WeightedAverage([]Sample{{Price: 10, Weight: 1}, {Price: 11, Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(10), p)
}

func TestWeightedAverage_SingleSampleUnchanged(t *testing.T) {
	for _, w := range []uint64{1, 7, 1 << 40} {
		p, err := WeightedAverage([]Sample{{SourceID: "x", Price: 99_800_001, Weight: w}})
		require.NoError(t, err)
		assert.Equal(t, fixedpoint.Price(99_800_001), p)
	}
}

func TestWeightedAverage_ZeroWeight(t *testing.T) {
	_, err := WeightedAverage([]Sample{{Price: 1, Weight: 0}, {Price: 2, Weight: 0}})
	assert.ErrorIs(t, err, ErrNoValidPrices)

	_, err = WeightedAverage(nil)
	assert.ErrorIs(t, err, ErrNoValidPrices)
}

func TestWeightedAverage_LargeValuesDoNotOverflow(t *testing.T) {
	p, err := WeightedAverage([]Sample{
		{Price: 1 << 62, Weight: 1 << 62},
		{Price: 1 << 62, Weight: 1 << 62},
	})
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(1<<62), p)
}

func TestWeightedMedian(t *testing.T) {
	p, err := WeightedMedian([]Sample{
		{Price: 300, Weight: 1},
		{Price: 100, Weight: 1},
		{Price: 200, Weight: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(200), p)

	// exactly half at the first element averages the neighbours
	p, err = WeightedMedian([]Sample{{Price: 100, Weight: 1}, {Price: 200, Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(150), p)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAverage, m)

	m, err = ParseMode("MEDIAN")
	require.NoError(t, err)
	assert.Equal(t, ModeMedian, m)

	_, err = ParseMode("tvwap")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestAggregator_AllWithinThreshold(t *testing.T) {
	agg, err := NewAggregator("USDP/USD", ModeAverage, logging.NewNoopLogger())
	require.NoError(t, err)

	res, err := agg.Aggregate(samplesOf(100_000_000, 100_500_000, 99_800_000), 500)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(100_000_000), res.Median)
	assert.Len(t, res.Inliers, 3)
	assert.Empty(t, res.Outliers)
	assert.Equal(t, fixedpoint.Price(100_100_000), res.Price)
}

func TestAggregator_ExtremeSpreadHasNoValidPrices(t *testing.T) {
	agg, err := NewAggregator("USDP/USD", ModeAverage, logging.NewNoopLogger())
	require.NoError(t, err)

	_, err = agg.Aggregate(samplesOf(100_000_000, 200_000_000), 500)
	assert.ErrorIs(t, err, ErrNoValidPrices)
}

func TestAggregator_ExcludesOutlier(t *testing.T) {
	agg, err := NewAggregator("USDP/USD", ModeAverage, nil)
	require.NoError(t, err)

	res, err := agg.Aggregate(samplesOf(100_000_000, 100_200_000, 99_900_000, 150_000_000), 500)
	require.NoError(t, err)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, "d", res.Outliers[0].SourceID)
	assert.Equal(t, fixedpoint.Price(100_033_333), res.Price)
}

func TestAggregator_MedianMode(t *testing.T) {
	agg, err := NewAggregator("USDP/USD", ModeMedian, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeMedian, agg.Mode())

	res, err := agg.Aggregate(samplesOf(100_000_000, 100_200_000, 99_900_000), 500)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Price(100_000_000), res.Price)
}
