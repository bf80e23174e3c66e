package domain

import (
	"context"
	"time"
)

// MuteStatusProvider queries the current notification settings of a conversation.
// Used on a registry cache miss only.
type MuteStatusProvider interface {
	FetchStatus(ctx context.Context, conv Conversation) (MuteStatus, error)
}

// MuteCommandIssuer applies a mute on the messaging service.
// credential is empty for classes that don't need one.
type MuteCommandIssuer interface {
	SetMute(ctx context.Context, conv Conversation, credential string, until time.Time) error
}

// NotificationSink acknowledges a mute to the account owner. Best effort.
type NotificationSink interface {
	NotifyMuted(ctx context.Context, conv Conversation, until time.Time) error
}

// MuteStateStore is a shared cache of mute-until timestamps, so several instances
// (or a restarted one) avoid re-querying the gateway.
type MuteStateStore interface {
	GetMuteUntil(ctx context.Context, conv Conversation) (until time.Time, found bool, err error)
	SetMuteUntil(ctx context.Context, conv Conversation, until time.Time) error
	// SeedMuteUntil stores until only when no value exists yet and does not
	// announce it. stored is false when another writer got there first.
	SeedMuteUntil(ctx context.Context, conv Conversation, until time.Time) (stored bool, err error)
}
