package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MuteRecord is an audit entry for one mute decision.
type MuteRecord struct {
	ID           uuid.UUID
	Conversation Conversation
	MuteUntil    time.Time
	Escalated    bool
	Issued       bool
	CreatedAt    time.Time
}

// MuteJournal persists mute decisions for later inspection.
type MuteJournal interface {
	Record(ctx context.Context, rec MuteRecord) error
	ListRecent(ctx context.Context, limit int) ([]MuteRecord, error)
}
