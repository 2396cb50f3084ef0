// Package updater drives update cycles: it collects samples from the sources
// bound to each feed, runs the engine, then persists and audits the result.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/server/aggregator"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
	"github.com/epayprotocol/oracle-usdp/pkg/server/sources"
)

const defaultFetchTimeout = 10 * time.Second

// ErrNoEngine is returned when a feed is built without an engine.
var ErrNoEngine = errors.New("feed requires an engine")

// Feed binds one engine to the sources its registry refers to.
type Feed struct {
	engine       *engine.Engine
	sources      map[string]sources.Source // keyed by external ref
	schedule     string
	fetchTimeout time.Duration
	logger       *logging.Logger

	// runMu keeps cycles of one feed from overlapping.
	runMu sync.Mutex
	// saveMu orders snapshot saves of one feed; a snapshot is taken and
	// written under it.
	saveMu sync.Mutex
}

// NewFeed creates a feed. bindings maps an external ref (type.name) to a
// running source.
func NewFeed(e *engine.Engine, bindings map[string]sources.Source, schedule string, fetchTimeout time.Duration, logger *logging.Logger) (*Feed, error) {
	if e == nil {
		return nil, ErrNoEngine
	}
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	b := make(map[string]sources.Source, len(bindings))
	for ref, src := range bindings {
		b[ref] = src
	}
	return &Feed{
		engine:       e,
		sources:      b,
		schedule:     schedule,
		fetchTimeout: fetchTimeout,
		logger:       logger.With("feed", e.Symbol()),
	}, nil
}

// Symbol returns the feed symbol.
func (f *Feed) Symbol() string {
	return f.engine.Symbol()
}

// Engine returns the feed engine.
func (f *Feed) Engine() *engine.Engine {
	return f.engine
}

// Schedule returns the cron expression of the feed.
func (f *Feed) Schedule() string {
	return f.schedule
}

// Collect fetches a price from every active registered source concurrently.
// Sources that fail, time out or are not bound are skipped; the samples keep
// the registry order.
func (f *Feed) Collect(ctx context.Context) []aggregator.Sample {
	registry := f.engine.Sources()
	symbol := f.Symbol()

	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	results := make([]*aggregator.Sample, len(registry))
	var wg sync.WaitGroup
	for i, cfg := range registry {
		if !cfg.Active {
			continue
		}
		src, ok := f.sources[cfg.ExternalRef]
		if !ok {
			f.logger.Warn("Source not bound", "source", cfg.ID, "ref", cfg.ExternalRef)
			continue
		}

		wg.Add(1)
		go func(i int, cfg engine.SourceConfig, src sources.Source) {
			defer wg.Done()
			price, err := src.FetchPrice(ctx, symbol)
			if err != nil {
				f.logger.Warn("Source fetch failed", "source", cfg.ID, "ref", cfg.ExternalRef, "error", err)
				return
			}
			results[i] = &aggregator.Sample{SourceID: cfg.ID, Price: price, Weight: cfg.Weight}
		}(i, cfg, src)
	}
	wg.Wait()

	samples := make([]aggregator.Sample, 0, len(results))
	for _, s := range results {
		if s != nil {
			samples = append(samples, *s)
		}
	}
	f.logger.Debug("Collected samples", "count", len(samples), "registered", len(registry))
	return samples
}

func (f *Feed) String() string {
	return fmt.Sprintf("feed(%s, %d sources)", f.Symbol(), len(f.sources))
}
