package aggregator

import (
	"fmt"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

// WeightedAverage computes sum(price*weight) / sum(weight) with truncating
// integer division. It fails with ErrNoValidPrices when there are no samples or
// the total weight is zero.
func WeightedAverage(samples []Sample) (fixedpoint.Price, error) {
	if len(samples) == 0 {
		return fixedpoint.Zero, fmt.Errorf("%w", ErrNoValidPrices)
	}

	weightedSum := fixedpoint.Wide(0)
	totalWeight := fixedpoint.Wide(0)
	for _, s := range samples {
		w := fixedpoint.Wide(s.Weight)
		weightedSum = weightedSum.Add(fixedpoint.Wide(uint64(s.Price)).Mul(w))
		totalWeight = totalWeight.Add(w)
	}

	if totalWeight.IsZero() {
		return fixedpoint.Zero, fmt.Errorf("%w: total weight is zero", ErrNoValidPrices)
	}

	avg, err := fixedpoint.QuoTrunc(weightedSum, totalWeight)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("weighted average: %w", err)
	}
	return fixedpoint.Price(avg), nil
}
