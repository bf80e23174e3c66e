// Package errors maps domain and infrastructure errors onto structured API
// errors with an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
)

// ErrorType is the category of an error, used for metrics and responses.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"   // 400
	TypeNotFound    ErrorType = "not_found"    // 404
	TypeRateLimited ErrorType = "rate_limited" // 429
	TypeInternal    ErrorType = "internal"     // 500
	TypeExternal    ErrorType = "external"     // 502
	TypeUnavailable ErrorType = "unavailable"  // 503
)

// Error is a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
	// RetryAfter, when positive, is sent as the Retry-After header.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code for the error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeExternal:
		return http.StatusBadGateway
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func ValidationError(message string) *Error { return newError(TypeValidation, message, nil) }

func NotFoundError(message string) *Error { return newError(TypeNotFound, message, nil) }

func RateLimitedError(message string) *Error { return newError(TypeRateLimited, message, nil) }

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryAfter tells the client when to try again (chainable).
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// ErrorResponse is the JSON body sent to clients. CorrelationID lets callers
// quote the request when reporting a failure.
type ErrorResponse struct {
	Error         string         `json:"error"`
	Type          ErrorType      `json:"type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error. Domain
// sentinels map to their own types; anything else is internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrUnknownClass):
		return newError(TypeValidation, "unknown conversation class", err)
	case errors.Is(err, domain.ErrConversationNotFound):
		return newError(TypeNotFound, "conversation not found", err)
	case errors.Is(err, domain.ErrRateLimited):
		return newError(TypeRateLimited, "rate limited by messaging gateway", err)
	case errors.Is(err, domain.ErrGatewayRejected), errors.Is(err, domain.ErrMissingCredential):
		return newError(TypeExternal, "messaging gateway rejected the request", err)
	case errors.Is(err, domain.ErrJournalDisabled):
		return newError(TypeUnavailable, "mute journal is not configured", err)
	default:
		return InternalError("internal server error", err)
	}
}
