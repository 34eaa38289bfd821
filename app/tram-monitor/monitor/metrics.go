package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// feed fetch outcomes
const (
	fetchOk        = "ok"
	fetchCoalesced = "coalesced"
	fetchFallback  = "fallback"
	fetchEmpty     = "empty"
)

// Metrics holds the Prometheus metrics of the engine. A nil *Metrics records nothing.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	FeedFetches        *prometheus.CounterVec
	ProjectionSteps    *prometheus.CounterVec
	ProgressClamps     prometheus.Counter
	QueryDuration      prometheus.Histogram
	PublishedSnapshots prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with a new registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	feedFetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tram_monitor_feed_fetches_total",
			Help: "Realtime feed reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	projectionSteps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tram_monitor_projection_steps_total",
			Help: "Vehicle projections by the segment search step that produced the coordinate",
		},
		[]string{"step"},
	)

	progressClamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tram_monitor_progress_clamps_total",
		Help: "Fractional progress values that fell outside [0, 1) and were clamped",
	})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tram_monitor_query_duration_seconds",
		Help:    "Vehicle query latency distribution",
		Buckets: prometheus.DefBuckets,
	})

	publishedSnapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tram_monitor_published_snapshots_total",
		Help: "Vehicle snapshots published over NATS",
	})

	registry.MustRegister(
		feedFetches,
		projectionSteps,
		progressClamps,
		queryDuration,
		publishedSnapshots,
	)

	return &Metrics{
		Registry:           registry,
		FeedFetches:        feedFetches,
		ProjectionSteps:    projectionSteps,
		ProgressClamps:     progressClamps,
		QueryDuration:      queryDuration,
		PublishedSnapshots: publishedSnapshots,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) feedFetched(outcome string) {
	if m == nil {
		return
	}
	m.FeedFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) projected(step string) {
	if m == nil {
		return
	}
	m.ProjectionSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) progressClamped() {
	if m == nil {
		return
	}
	m.ProgressClamps.Inc()
}

func (m *Metrics) observeQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(d.Seconds())
}

func (m *Metrics) snapshotPublished() {
	if m == nil {
		return
	}
	m.PublishedSnapshots.Inc()
}
