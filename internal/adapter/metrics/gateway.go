package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics holds Prometheus metrics for traffic to and from the messaging gateway.
type GatewayMetrics struct {
	RequestDuration      *prometheus.HistogramVec
	RequestsTotal        *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
}

// NewGatewayMetrics creates and registers gateway metrics on the given registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway API calls in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway API calls, by operation and result.",
		}, []string{"operation", "result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook deliveries, by event type and result.",
		}, []string{"type", "result"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "notifications_dropped_total",
			Help:      "Total number of self notifications dropped by the rate limiter.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.WebhookEvents, m.NotificationsDropped)
	return m
}

// ObserveRequest records one gateway API call.
func (m *GatewayMetrics) ObserveRequest(operation, result string, seconds float64) {
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
	m.RequestsTotal.WithLabelValues(operation, result).Inc()
}
