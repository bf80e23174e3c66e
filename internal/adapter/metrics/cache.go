package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for mute status cache performance.
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_cache",
			Name:      "hits_total",
			Help:      "Total number of mute status cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_cache",
			Name:      "misses_total",
			Help:      "Total number of mute status cache misses, by layer.",
		}, []string{"layer"}),
	}

	reg.MustRegister(m.Hits, m.Misses)
	return m
}

// ObserveLookup records a lookup on the given cache layer.
func (m *CacheMetrics) ObserveLookup(layer string, hit bool) {
	if hit {
		m.Hits.WithLabelValues(layer).Inc()
		return
	}
	m.Misses.WithLabelValues(layer).Inc()
}
