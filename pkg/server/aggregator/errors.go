// Package aggregator provides the outlier filter and the weighted aggregation
// applied to each update cycle's samples.
package aggregator

import "errors"

var (
	// ErrNoSamples indicates that no samples were provided.
	ErrNoSamples = errors.New("no samples provided")
	// ErrNoValidPrices indicates that no inlier carried any weight.
	ErrNoValidPrices = errors.New("no valid prices")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)
