package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultStatusGrace is how long a status outlives its mute-until timestamp.
// Unmuted statuses live this long too, after which the gateway is asked again.
const DefaultStatusGrace = 24 * time.Hour

// MuteStateStore shares mute-until timestamps between instances. Values are
// unix seconds, 0 meaning not muted. Every write is also announced on the
// update channel, tagged with origin, so peers can refresh their local caches.
type MuteStateStore struct {
	rdb    *goredis.Client
	clock  clockwork.Clock
	grace  time.Duration
	origin string
}

var _ domain.MuteStateStore = (*MuteStateStore)(nil)

// NewMuteStateStore creates the store. An empty origin disables update announcements.
func NewMuteStateStore(rdb *goredis.Client, clock clockwork.Clock, grace time.Duration, origin string) *MuteStateStore {
	if grace <= 0 {
		grace = DefaultStatusGrace
	}
	return &MuteStateStore{rdb: rdb, clock: clock, grace: grace, origin: origin}
}

func (s *MuteStateStore) GetMuteUntil(ctx context.Context, conv domain.Conversation) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, muteUntilKey(conv)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get mute state for %s: %w", conv, err)
	}

	until, err := decodeMuteUntil(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt mute state for %s: %w", conv, err)
	}
	return until, true, nil
}

func (s *MuteStateStore) SetMuteUntil(ctx context.Context, conv domain.Conversation, until time.Time) error {
	key, value := muteUntilKey(conv), encodeMuteUntil(until)

	if s.origin == "" {
		if err := s.rdb.Set(ctx, key, value, s.ttl(until)).Err(); err != nil {
			return fmt.Errorf("failed to set mute state for %s: %w", conv, err)
		}
		return nil
	}

	update := encodeUpdate(MuteStateUpdate{Origin: s.origin, Conversation: conv, Until: until})
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, value, s.ttl(until))
		pipe.Publish(ctx, muteStateChannel, update)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set mute state for %s: %w", conv, err)
	}
	return nil
}

// SeedMuteUntil records a status read from the gateway. It never overwrites a
// value written meanwhile and is not announced, since it is a read result.
func (s *MuteStateStore) SeedMuteUntil(ctx context.Context, conv domain.Conversation, until time.Time) (bool, error) {
	stored, err := s.rdb.SetNX(ctx, muteUntilKey(conv), encodeMuteUntil(until), s.ttl(until)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to seed mute state for %s: %w", conv, err)
	}
	return stored, nil
}

// ttl of zero means no expiry.
func (s *MuteStateStore) ttl(until time.Time) time.Duration {
	if !until.Before(domain.MuteForever) {
		return 0
	}
	now := s.clock.Now()
	if until.Before(now) {
		return s.grace
	}
	return until.Sub(now) + s.grace
}

func muteUntilKey(conv domain.Conversation) string {
	return fmt.Sprintf("mute_until:%s:%s", conv.Class, conv.ID)
}

func encodeMuteUntil(until time.Time) string {
	if until.IsZero() {
		return "0"
	}
	return strconv.FormatInt(until.Unix(), 10)
}

func decodeMuteUntil(raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if secs == 0 {
		return time.Time{}, nil
	}
	return time.Unix(secs, 0), nil
}
