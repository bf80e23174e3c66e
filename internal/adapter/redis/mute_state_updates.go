package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const muteStateChannel = "mute_state:updates"

// MuteStateUpdate announces a mute-until written by the instance named Origin.
type MuteStateUpdate struct {
	Origin       string
	Conversation domain.Conversation
	Until        time.Time
}

// MuteStateSubscriber applies mute-until updates announced by other instances.
type MuteStateSubscriber struct {
	rdb    *goredis.Client
	origin string
	apply  func(conv domain.Conversation, until time.Time)
}

// NewMuteStateSubscriber creates a subscriber that skips updates from origin
// and hands everything else to apply.
func NewMuteStateSubscriber(rdb *goredis.Client, origin string, apply func(conv domain.Conversation, until time.Time)) *MuteStateSubscriber {
	return &MuteStateSubscriber{rdb: rdb, origin: origin, apply: apply}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (s *MuteStateSubscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, muteStateChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			s.handle(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *MuteStateSubscriber) handle(ctx context.Context, payload string) {
	update, err := decodeUpdate(payload)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring malformed mute state update", "payload", payload, "error", err)
		return
	}
	if update.Origin == s.origin {
		return
	}

	s.apply(update.Conversation, update.Until)
	slog.DebugContext(ctx, "Applied mute state update from peer", "conversation", update.Conversation.String(), "origin", update.Origin)
}

// Wire format: origin|class|id|unix. Conversation IDs never contain '|'.
func encodeUpdate(u MuteStateUpdate) string {
	return strings.Join([]string{u.Origin, string(u.Conversation.Class), u.Conversation.ID, encodeMuteUntil(u.Until)}, "|")
}

func decodeUpdate(payload string) (MuteStateUpdate, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		return MuteStateUpdate{}, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}

	class, err := domain.ParseConversationClass(parts[1])
	if err != nil {
		return MuteStateUpdate{}, err
	}
	if parts[2] == "" {
		return MuteStateUpdate{}, errors.New("empty conversation id")
	}
	until, err := decodeMuteUntil(parts[3])
	if err != nil {
		return MuteStateUpdate{}, fmt.Errorf("invalid mute-until: %w", err)
	}

	return MuteStateUpdate{
		Origin:       parts[0],
		Conversation: domain.Conversation{ID: parts[2], Class: class},
		Until:        until,
	}, nil
}
