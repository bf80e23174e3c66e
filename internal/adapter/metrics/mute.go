package metrics

import "github.com/prometheus/client_golang/prometheus"

// MuteMetrics holds Prometheus metrics for the message-counting pipeline.
type MuteMetrics struct {
	EventsProcessed  *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	QueueDelay       prometheus.Histogram
	MuteCommands     *prometheus.CounterVec
	Tracked          prometheus.Gauge
}

// NewMuteMetrics creates and registers mute pipeline metrics on the given registry.
func NewMuteMetrics(reg prometheus.Registerer) *MuteMetrics {
	m := &MuteMetrics{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of message events processed, by result.",
		}, []string{"result"}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Duration of a mute decision, including status lookups, in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		QueueDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_queue_delay_seconds",
			Help:      "Time between receiving a message event and counting it, in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		MuteCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mute_commands_total",
			Help:      "Total number of mute commands issued, by conversation class and outcome.",
		}, []string{"class", "outcome"}),
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_tracked",
			Help:      "Number of conversations with a cached mute status.",
		}),
	}

	reg.MustRegister(m.EventsProcessed, m.DecisionDuration, m.QueueDelay, m.MuteCommands, m.Tracked)
	return m
}
