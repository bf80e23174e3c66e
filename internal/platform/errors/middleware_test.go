package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newErrorsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_http_errors_total",
		Help: "test",
	}, []string{"type"})
}

func runMiddleware(t *testing.T, counter *prometheus.CounterVec, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, Middleware(counter)(h)(c)
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	counter := newErrorsCounter()
	rec, err := runMiddleware(t, counter, func(c echo.Context) error {
		return ValidationError("invalid input")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("validation")))
}

func TestMiddlewareWithStandardError(t *testing.T) {
	counter := newErrorsCounter()
	rec, err := runMiddleware(t, counter, func(c echo.Context) error {
		return fmt.Errorf("standard error")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("internal")))
}

func TestMiddlewareWithDomainError(t *testing.T) {
	rec, err := runMiddleware(t, nil, func(c echo.Context) error {
		return fmt.Errorf("lookup: %w", domain.ErrRateLimited)
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddlewareIncludesCorrelationID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/mutes", nil)
	req = req.WithContext(correlation.WithID(req.Context(), "req-1234"))
	rec := httptest.NewRecorder()

	err := Middleware(nil)(func(c echo.Context) error {
		return fmt.Errorf("list: %w", domain.ErrJournalDisabled)
	})(e.NewContext(req, rec))
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1234", resp.CorrelationID)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestMiddlewareSetsRetryAfter(t *testing.T) {
	rec, err := runMiddleware(t, nil, func(c echo.Context) error {
		return RateLimitedError("slow down").WithRetryAfter(1500 * time.Millisecond)
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestMiddlewareWithNoError(t *testing.T) {
	counter := newErrorsCounter()
	rec, err := runMiddleware(t, counter, func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
	assert.Equal(t, 0, testutil.CollectAndCount(counter))
}

func TestMiddlewarePassesEchoErrorsThrough(t *testing.T) {
	counter := newErrorsCounter()
	httpErr := echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	_, err := runMiddleware(t, counter, func(c echo.Context) error {
		return httpErr
	})

	assert.Equal(t, httpErr, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("validation")))
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		httpErr  *echo.HTTPError
		wantType ErrorType
	}{
		{"bad_request", echo.NewHTTPError(http.StatusBadRequest, "bad request"), TypeValidation},
		{"not_found", echo.NewHTTPError(http.StatusNotFound, "not found"), TypeNotFound},
		{"too_many", echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), TypeRateLimited},
		{"bad_gateway", echo.NewHTTPError(http.StatusBadGateway, "bad gateway"), TypeExternal},
		{"service_unavailable", echo.NewHTTPError(http.StatusServiceUnavailable, "unavailable"), TypeUnavailable},
		{"internal", echo.NewHTTPError(http.StatusInternalServerError, "internal error"), TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, WrapHTTPError(tt.httpErr).Type)
		})
	}
}

func TestWrapHTTPErrorWithNonStringMessage(t *testing.T) {
	httpErr := echo.NewHTTPError(http.StatusBadRequest, 12345)
	httpErr.Internal = fmt.Errorf("underlying cause")

	err := WrapHTTPError(httpErr)

	assert.Equal(t, "internal server error", err.Message)
	assert.Equal(t, httpErr.Internal, err.Cause)
}
