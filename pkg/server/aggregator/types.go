// Package aggregator provides the outlier filter and the weighted aggregation
// applied to each update cycle's samples.
package aggregator

import (
	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
)

const (
	// ModeAverage uses the weighted average of inliers.
	ModeAverage = "average"
	// ModeMedian uses the weighted median of inliers.
	ModeMedian = "median"
)

// Sample is one source's price for the current cycle.
type Sample struct {
	SourceID string           `json:"source_id"`
	Price    fixedpoint.Price `json:"price"`
	Weight   uint64           `json:"weight"`
}

// Outlier is a sample excluded by the median filter.
type Outlier struct {
	Index        int              `json:"index"` // position in the classified batch
	SourceID     string           `json:"source_id"`
	Price        fixedpoint.Price `json:"price"`
	DeviationBps uint64           `json:"deviation_bps"`
}

// Classification is the output of the median filter.
type Classification struct {
	Median   fixedpoint.Price
	Inliers  []Sample
	Outliers []Outlier
}

// Result is a fully aggregated candidate price.
type Result struct {
	Price    fixedpoint.Price
	Median   fixedpoint.Price
	Inliers  []Sample
	Outliers []Outlier
}
