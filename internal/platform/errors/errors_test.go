package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("invalid input")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, "validation: invalid input", err.Error())
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("database connection failed")
	err := InternalError("failed to list mutes", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Equal(t, "internal: failed to list mutes: database connection failed", err.Error())
}

func TestHTTPStatusAllTypes(t *testing.T) {
	tests := []struct {
		errType    ErrorType
		wantStatus int
	}{
		{TypeValidation, http.StatusBadRequest},
		{TypeNotFound, http.StatusNotFound},
		{TypeRateLimited, http.StatusTooManyRequests},
		{TypeInternal, http.StatusInternalServerError},
		{TypeExternal, http.StatusBadGateway},
		{TypeUnavailable, http.StatusServiceUnavailable},
		{ErrorType("bogus"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType}
			assert.Equal(t, tt.wantStatus, err.HTTPStatus())
		})
	}
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("no such conversation").
		WithContext("class", "chat").
		WithContext("id", "42")

	assert.Equal(t, map[string]any{"class": "chat", "id": "42"}, err.Context)
	assert.Equal(t, ErrorResponse{Error: "no such conversation", Type: TypeNotFound, Context: err.Context}, err.ToResponse())
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{Type: TypeInternal, Message: "test"}
	err.WithContext("key", "value")

	assert.Equal(t, "value", err.Context["key"])
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := ExternalError("gateway failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestAsStructuredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"unknown class", fmt.Errorf("parse: %w", domain.ErrUnknownClass), TypeValidation},
		{"not found", domain.ErrConversationNotFound, TypeNotFound},
		{"rate limited", fmt.Errorf("set mute: %w", domain.ErrRateLimited), TypeRateLimited},
		{"gateway rejected", domain.ErrGatewayRejected, TypeExternal},
		{"missing credential", domain.ErrMissingCredential, TypeExternal},
		{"journal disabled", domain.ErrJournalDisabled, TypeUnavailable},
		{"plain error", errors.New("boom"), TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsStructuredError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestAsStructuredErrorUnwrapsStructured(t *testing.T) {
	inner := UnavailableError("redis down", nil)
	got := AsStructuredError(fmt.Errorf("ctx: %w", inner))

	assert.Same(t, inner, got)
}

func TestAsStructuredErrorWithNil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestAsStructuredErrorReturnsSameInstance(t *testing.T) {
	original := ValidationError("bad")
	assert.Same(t, original, AsStructuredError(original))
}
