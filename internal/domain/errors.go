package domain

import "errors"

var (
	ErrUnknownClass         = errors.New("unknown conversation class")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRateLimited          = errors.New("rate limited by gateway")
	ErrGatewayRejected      = errors.New("request rejected by gateway")
	ErrMissingCredential    = errors.New("access credential missing")
	ErrJournalDisabled      = errors.New("mute journal not configured")
)
