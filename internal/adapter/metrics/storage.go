package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorageMetrics holds Prometheus metrics for the optional Redis and PostgreSQL backends.
type StorageMetrics struct {
	RedisOps        *prometheus.CounterVec
	RedisOpDuration *prometheus.HistogramVec
	RedisDialErrors prometheus.Counter
	BreakerState    prometheus.Gauge
	BreakerChanges  *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
	DBErrors        *prometheus.CounterVec
}

// NewStorageMetrics creates and registers storage metrics on the given registry.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		RedisOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total number of Redis commands, by command and status.",
		}, []string{"operation", "status"}),
		RedisOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis commands in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"operation"}),
		RedisDialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "dial_errors_total",
			Help:      "Total number of failed Redis connection attempts.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Redis circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of Redis circuit breaker state changes, by new state.",
		}, []string{"state"}),
		DBQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of PostgreSQL queries in seconds, by statement kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		DBErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total number of failed PostgreSQL queries, by statement kind.",
		}, []string{"query"}),
	}

	reg.MustRegister(m.RedisOps, m.RedisOpDuration, m.RedisDialErrors, m.BreakerState, m.BreakerChanges, m.DBQueryDuration, m.DBErrors)
	return m
}
