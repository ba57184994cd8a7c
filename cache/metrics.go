package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a Coordinator. A nil *Metrics
// records nothing.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	SourceFetches *prometheus.CounterVec
	SourceLatency *prometheus.HistogramVec
	SharedFlights prometheus.Counter
	Degraded      *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by operation and result (hit or miss)",
		}, []string{"op", "result"}),
		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Backing store calls by operation and status",
		}, []string{"op", "status"}),
		SourceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Backing store call latency by operation",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		SharedFlights: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_fills_total",
			Help:      "Fill results delivered through a flight shared by several callers",
		}),
		Degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Operations that hit a cache store failure, by operation",
		}, []string{"op"}),
	}
}

// RecordLookup records a cache hit or miss.
func (m *Metrics) RecordLookup(op string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.Lookups.WithLabelValues(op, result).Inc()
}

// RecordFetch records one backing store call.
func (m *Metrics) RecordFetch(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SourceFetches.WithLabelValues(op, status).Inc()
	m.SourceLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordShared records a caller served by a shared fill.
func (m *Metrics) RecordShared() {
	if m == nil {
		return
	}
	m.SharedFlights.Inc()
}

// RecordDegraded records a cache store failure.
func (m *Metrics) RecordDegraded(op string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(op).Inc()
}
