// Package metrics provides Prometheus metrics for the oracle system.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceUpdatesTotal is a counter of the total number of price updates.
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of price updates received from sources",
		},
		[]string{"source", "symbol"},
	)

	// SourceFetchErrorsTotal counts failed source fetches.
	SourceFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of failed price fetches per source",
		},
		[]string{"source", "symbol"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OutlierRejectionsTotal is a counter of rejected outlier prices.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of outlier prices rejected",
		},
		[]string{"symbol"},
	)

	// UpdateCyclesTotal counts update cycles by outcome.
	UpdateCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_update_cycles_total",
			Help: "Total number of update cycles by outcome",
		},
		[]string{"symbol", "outcome"},
	)

	// CircuitBreakerTripped is 1 while a feed's breaker is tripped.
	CircuitBreakerTripped = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_circuit_breaker_tripped",
			Help: "Circuit breaker state per feed (1=tripped, 0=normal)",
		},
		[]string{"symbol"},
	)

	// LatestPrice is the last accepted aggregate as a float.
	LatestPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_latest_price",
			Help: "Last accepted aggregate price",
		},
		[]string{"symbol"},
	)

	// PriceAgeSeconds is the age of the last accepted aggregate.
	PriceAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_price_age_seconds",
			Help: "Seconds since the last accepted aggregate",
		},
		[]string{"symbol"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "type"},
	)

	// SourceLastUpdate is a gauge of the last update timestamp from sources.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last update from source",
		},
		[]string{"source"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// StoreErrorsTotal counts snapshot and audit write failures.
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_store_errors_total",
			Help: "Total number of persistence failures",
		},
		[]string{"store", "operation"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default registry. Calling it more than
// once is harmless.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PriceUpdatesTotal,
			SourceFetchErrorsTotal,
			PriceAggregationDuration,
			OutlierRejectionsTotal,
			UpdateCyclesTotal,
			CircuitBreakerTripped,
			LatestPrice,
			PriceAgeSeconds,
			SourceHealth,
			SourceLastUpdate,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			StoreErrorsTotal,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceUpdate records a price update from a source.
func RecordSourceUpdate(source, symbol string) {
	PriceUpdatesTotal.WithLabelValues(source, symbol).Inc()
	SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
}

// RecordSourceError records a failed fetch.
func RecordSourceError(source, symbol string) {
	SourceFetchErrorsTotal.WithLabelValues(source, symbol).Inc()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, sourceType string, healthy bool) {
	SourceHealth.WithLabelValues(source, sourceType).Set(boolToFloat(healthy))
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(symbol string) {
	OutlierRejectionsTotal.WithLabelValues(symbol).Inc()
}

// RecordCycle records the outcome of one update cycle.
func RecordCycle(symbol, outcome string) {
	UpdateCyclesTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordBreakerState records whether the breaker of a feed is tripped.
func RecordBreakerState(symbol string, tripped bool) {
	CircuitBreakerTripped.WithLabelValues(symbol).Set(boolToFloat(tripped))
}

// RecordLatestPrice records the last accepted price and its age.
func RecordLatestPrice(symbol string, price float64, age time.Duration) {
	LatestPrice.WithLabelValues(symbol).Set(price)
	PriceAgeSeconds.WithLabelValues(symbol).Set(age.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordStoreError records a persistence failure.
func RecordStoreError(store, operation string) {
	StoreErrorsTotal.WithLabelValues(store, operation).Inc()
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
