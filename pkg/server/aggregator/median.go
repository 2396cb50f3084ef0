// Package aggregator provides the outlier filter and the weighted aggregation
// applied to each update cycle's samples.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

// Median returns the median of prices. For an even count it is the truncated
// mean of the two central values. prices is not modified.
func Median(prices []fixedpoint.Price) fixedpoint.Price {
	n := len(prices)
	if n == 0 {
		return fixedpoint.Zero
	}

	sorted := make([]fixedpoint.Price, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	if n%2 == 0 {
		return fixedpoint.Mid(sorted[n/2-1], sorted[n/2])
	}
	return sorted[n/2]
}

// Classify computes the median of samples and splits them into inliers and
// outliers. A sample is an inlier iff its deviation from the median is at most
// thresholdBps. Outliers keep their original index and source.
func Classify(samples []Sample, thresholdBps uint64) (Classification, error) {
	if len(samples) == 0 {
		return Classification{}, fmt.Errorf("%w", ErrNoSamples)
	}

	if len(samples) == 1 {
		return Classification{
			Median:  samples[0].Price,
			Inliers: []Sample{samples[0]},
		}, nil
	}

	prices := make([]fixedpoint.Price, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	median := Median(prices)

	c := Classification{
		Median:  median,
		Inliers: make([]Sample, 0, len(samples)),
	}
	for i, s := range samples {
		dev := fixedpoint.DeviationBps(s.Price, median)
		if dev > thresholdBps {
			c.Outliers = append(c.Outliers, Outlier{
				Index:        i,
				SourceID:     s.SourceID,
				Price:        s.Price,
				DeviationBps: dev,
			})
			continue
		}
		c.Inliers = append(c.Inliers, s)
	}

	return c, nil
}

// WeightedMedian returns the price at which the cumulative weight of the
// ascending-sorted samples reaches half of the total weight. When the
// cumulative weight lands exactly on the half, the two neighbouring prices are
// averaged.
func WeightedMedian(samples []Sample) (fixedpoint.Price, error) {
	if len(samples) == 0 {
		return fixedpoint.Zero, fmt.Errorf("%w", ErrNoValidPrices)
	}

	sorted := make([]Sample, 0, len(samples))
	total := fixedpoint.Wide(0)
	for _, s := range samples {
		if s.Weight == 0 {
			continue
		}
		sorted = append(sorted, s)
		total = total.Add(fixedpoint.Wide(s.Weight))
	}
	if len(sorted) == 0 {
		return fixedpoint.Zero, fmt.Errorf("%w: total weight is zero", ErrNoValidPrices)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})

	// Compare 2*cumulative against total to stay in integers.
	cumulative := fixedpoint.Wide(0)
	for i, s := range sorted {
		cumulative = cumulative.Add(fixedpoint.Wide(s.Weight))
		doubled := cumulative.Add(cumulative)
		if doubled.GreaterThanOrEqual(total) {
			if doubled.Equal(total) && i+1 < len(sorted) {
				return fixedpoint.Mid(s.Price, sorted[i+1].Price), nil
			}
			return s.Price, nil
		}
	}

	return sorted[len(sorted)-1].Price, nil
}
