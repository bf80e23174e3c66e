package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})

	require.NoError(t, handler(c))
	assert.Len(t, seen, 8)
	assert.Equal(t, seen, rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_ReusesCallerID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "upstream-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})

	require.NoError(t, handler(c))
	assert.Equal(t, "upstream-42", seen)
	assert.Equal(t, "upstream-42", rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_RejectsOversizedID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, strings.Repeat("x", correlation.MaxLength+1))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := correlationMiddleware(func(c echo.Context) error { return nil })

	require.NoError(t, handler(c))
	assert.Len(t, rec.Header().Get(correlation.Header), 8)
}

func TestRoutes_WebhookIsWired(t *testing.T) {
	called := false
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, hasID := correlation.ID(r.Context())
		assert.True(t, hasID)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := newTestServer(t, &mockAppService{}, withWebhookHandler(webhook))

	rec := serve(srv, http.MethodPost, "/webhooks/gateway")

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRoutes_MetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	srv := newTestServer(t, &mockAppService{}, withMetricsHandler(metrics.Handler(reg)))

	rec := serve(srv, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRoutes_UnknownRouteCountsError(t *testing.T) {
	httpMetrics := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	srv := newTestServer(t, &mockAppService{}, func(s *Server) { s.httpMetrics = httpMetrics })

	rec := serve(srv, http.MethodGet, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpMetrics.ErrorsTotal.WithLabelValues("not_found")))
}

func TestRoutes_APIRequestsAreMeasured(t *testing.T) {
	httpMetrics := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	srv := newTestServer(t, &mockAppService{}, func(s *Server) { s.httpMetrics = httpMetrics })

	rec := serve(srv, http.MethodGet, "/api/mutes")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpMetrics.RequestsTotal.WithLabelValues(http.MethodGet, "/api/mutes", "200")))
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(srv, http.MethodGet, "/health/live")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
