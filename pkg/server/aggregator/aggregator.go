package aggregator

import (
	"fmt"
	"strings"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/fixedpoint"
	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/metrics"
)

// Aggregator filters a cycle's samples against their median and combines the
// inliers into one candidate price.
type Aggregator struct {
	symbol string
	mode   string
	logger *logging.Logger
}

// ParseMode normalizes a configured aggregation mode. An empty mode selects
// ModeAverage.
func ParseMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAverage:
		return ModeAverage, nil
	case ModeMedian:
		return ModeMedian, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: average, median)", ErrUnknownMode, mode)
	}
}

// NewAggregator creates an aggregator for symbol using the given final mode.
func NewAggregator(symbol, mode string, logger *logging.Logger) (*Aggregator, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Aggregator{
		symbol: symbol,
		mode:   m,
		logger: logger,
	}, nil
}

// Mode returns the final aggregation mode.
func (a *Aggregator) Mode() string {
	return a.mode
}

// Aggregate classifies samples against thresholdBps and aggregates the
// inliers. It never mutates samples.
func (a *Aggregator) Aggregate(samples []Sample, thresholdBps uint64) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(a.mode, time.Since(start))
	}()

	c, err := Classify(samples, thresholdBps)
	if err != nil {
		return Result{}, err
	}

	for _, o := range c.Outliers {
		a.logger.Debug("Rejecting outlier",
			"symbol", a.symbol,
			"source", o.SourceID,
			"price", o.Price.String(),
			"median", c.Median.String(),
			"deviation_bps", o.DeviationBps,
			"threshold_bps", thresholdBps)
		metrics.RecordOutlierRejection(a.symbol)
	}

	var price fixedpoint.Price
	if a.mode == ModeMedian {
		price, err = WeightedMedian(c.Inliers)
	} else {
		price, err = WeightedAverage(c.Inliers)
	}
	if err != nil {
		a.logger.Warn("No valid prices after outlier filtering",
			"symbol", a.symbol,
			"samples", len(samples),
			"outliers", len(c.Outliers))
		return Result{}, err
	}

	a.logger.Debug("Aggregated samples",
		"symbol", a.symbol,
		"mode", a.mode,
		"samples", len(samples),
		"inliers", len(c.Inliers),
		"price", price.String())

	return Result{
		Price:    price,
		Median:   c.Median,
		Inliers:  c.Inliers,
		Outliers: c.Outliers,
	}, nil
}
