// Package metrics holds the Prometheus collectors for search activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome and cache labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics groups the search collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Searches       *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	SearchResults  prometheus.Histogram
	ClosureCache   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entityquery_searches_total",
			Help: "Total number of searches, by outcome",
		}, []string{"outcome"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "entityquery_search_duration_seconds",
			Help:    "Wall time spent draining a search pipeline",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "entityquery_search_results",
			Help:    "Number of results returned per search",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ClosureCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entityquery_closure_cache_total",
			Help: "Relationship closure lookups in the shared cache, by result",
		}, []string{"result"}),
	}
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(elapsed time.Duration, results int, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Searches.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResults.Observe(float64(results))
	}
}

// ObserveClosure records a shared closure cache lookup.
func (m *Metrics) ObserveClosure(hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.ClosureCache.WithLabelValues(result).Inc()
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
