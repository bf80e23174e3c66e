package metrics

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
	ErrorsTotal     *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of HTTP errors, by error type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge, m.ErrorsTotal)
	return m
}

// unmatchedRoute labels requests no route matched, keeping label cardinality
// bounded when scanners hit random paths.
const unmatchedRoute = "unmatched"

// Middleware returns an Echo middleware that records HTTP metrics, labelled by
// route template. It skips /metrics and /health/* endpoints.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "/metrics" || strings.HasPrefix(route, "/health/") {
				return next(c)
			}
			if route == "" || route == "/*" {
				route = unmatchedRoute
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			timer := prometheus.NewTimer(nil)
			err := next(c)

			status := strconv.Itoa(responseStatus(c, err))
			method := c.Request().Method
			m.RequestDuration.WithLabelValues(method, route, status).Observe(timer.ObserveDuration().Seconds())
			m.RequestsTotal.WithLabelValues(method, route, status).Inc()
			return err
		}
	}
}

// Echo errors are rendered after the middleware chain returns, so the
// response does not carry their status yet.
func responseStatus(c echo.Context, err error) int {
	var httpErr *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return c.Response().Status
}
