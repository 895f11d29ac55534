// Package metrics exposes Prometheus collectors for the harvest and search subsystems.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestFetchesTotal         *prometheus.CounterVec
	harvestFetchDurationSeconds prometheus.Histogram
	harvestFlushesTotal         *prometheus.CounterVec
	harvestFrontierDepth        prometheus.Gauge
	harvestVisitedTotal         prometheus.Gauge
	harvestActiveWorkers        prometheus.Gauge
	searchQueriesTotal          *prometheus.CounterVec
	searchQueryDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Fetch outcome labels recorded by the scheduler.
const (
	FetchOutcomeSaved    = "saved"
	FetchOutcomeRejected = "rejected"
	FetchOutcomeFailed   = "failed"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetches_total",
				Help: "Total number of article fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Histogram of article fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		harvestFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_flushes_total",
				Help: "Total number of batch flushes to the store, labeled by status.",
			},
			[]string{"status"},
		)

		harvestFrontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_frontier_depth",
				Help: "Current number of entries waiting in the frontier queue.",
			},
		)

		harvestVisitedTotal = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_visited_total",
				Help: "Number of titles marked visited during the crawl.",
			},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of crawl workers currently running.",
			},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total number of queries served, labeled by kind.",
			},
			[]string{"kind"},
		)

		searchQueryDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_query_duration_seconds",
				Help:    "Histogram of query latencies, labeled by kind.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt with its outcome and latency.
func ObserveFetch(outcome string, duration time.Duration) {
	harvestFetchesTotal.WithLabelValues(outcome).Inc()
	harvestFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveFlush increments the flush counter for the given status.
func ObserveFlush(status string) {
	harvestFlushesTotal.WithLabelValues(status).Inc()
}

// SetFrontierDepth updates the frontier depth gauge.
func SetFrontierDepth(depth int) {
	harvestFrontierDepth.Set(float64(depth))
}

// SetVisited updates the visited titles gauge.
func SetVisited(count int) {
	harvestVisitedTotal.Set(float64(count))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	harvestActiveWorkers.Dec()
}

// ObserveQuery records one served query with its latency.
func ObserveQuery(kind string, duration time.Duration) {
	searchQueriesTotal.WithLabelValues(kind).Inc()
	searchQueryDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}
