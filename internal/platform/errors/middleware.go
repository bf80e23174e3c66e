package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware returns an Echo middleware that renders errors returned by
// handlers as JSON. errorsTotal, labelled by type, may be nil.
func Middleware(errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	record := func(t ErrorType) {
		if errorsTotal != nil {
			errorsTotal.WithLabelValues(string(t)).Inc()
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo errors (404 routing, body limits) keep their status code.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				record(WrapHTTPError(httpErr).Type)
				return err
			}

			structuredErr := AsStructuredError(err)
			record(structuredErr.Type)
			logError(c, structuredErr)

			resp := structuredErr.ToResponse()
			resp.CorrelationID, _ = correlation.ID(c.Request().Context())
			if structuredErr.RetryAfter > 0 {
				seconds := int(math.Ceil(structuredErr.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
			}

			if err := c.JSON(structuredErr.HTTPStatus(), resp); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}

// WrapHTTPError converts Echo's HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var errType ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnauthorized:
		errType = TypeValidation
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = TypeNotFound
	case http.StatusTooManyRequests:
		errType = TypeRateLimited
	case http.StatusBadGateway:
		errType = TypeExternal
	case http.StatusServiceUnavailable:
		errType = TypeUnavailable
	default:
		errType = TypeInternal
	}

	err := newError(errType, message, nil)
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}
