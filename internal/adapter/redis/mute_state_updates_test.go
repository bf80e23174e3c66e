package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUpdate(t *testing.T) {
	update := MuteStateUpdate{Origin: "instance-a", Conversation: chat, Until: time.Unix(1_700_000_300, 0)}

	payload := encodeUpdate(update)
	assert.Equal(t, "instance-a|chat|-100200|1700000300", payload)

	decoded, err := decodeUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, update.Origin, decoded.Origin)
	assert.Equal(t, update.Conversation, decoded.Conversation)
	assert.True(t, update.Until.Equal(decoded.Until))
}

func TestDecodeUpdate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"too few fields", "a|chat|1"},
		{"unknown class", "a|group|1|0"},
		{"empty id", "a|chat||0"},
		{"bad timestamp", "a|chat|1|later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeUpdate(tt.payload)
			assert.Error(t, err)
		})
	}
}

type appliedUpdates struct {
	mu      sync.Mutex
	applied map[domain.Conversation]time.Time
}

func (a *appliedUpdates) apply(conv domain.Conversation, until time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied[conv] = until
}

func (a *appliedUpdates) get(conv domain.Conversation) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	until, ok := a.applied[conv]
	return until, ok
}

func TestMuteStateSubscriber_SkipsOwnUpdates(t *testing.T) {
	got := &appliedUpdates{applied: make(map[domain.Conversation]time.Time)}
	sub := NewMuteStateSubscriber(nil, "self", got.apply)

	sub.handle(context.Background(), encodeUpdate(MuteStateUpdate{Origin: "self", Conversation: chat}))
	sub.handle(context.Background(), "garbage")
	sub.handle(context.Background(), encodeUpdate(MuteStateUpdate{Origin: "peer", Conversation: channel, Until: domain.MuteForever}))

	_, ok := got.get(chat)
	assert.False(t, ok)
	until, ok := got.get(channel)
	require.True(t, ok)
	assert.True(t, domain.MuteForever.Equal(until))
}

// --- Integration ---

func TestMuteStateSubscriber_ReceivesPeerWrites(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	got := &appliedUpdates{applied: make(map[domain.Conversation]time.Time)}
	sub := NewMuteStateSubscriber(client, "instance-b", got.apply)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx)
	}()

	peer := NewMuteStateStore(client, clockwork.NewRealClock(), time.Hour, "instance-a")
	self := NewMuteStateStore(client, clockwork.NewRealClock(), time.Hour, "instance-b")
	until := time.Now().Add(5 * time.Minute).Truncate(time.Second)

	// Subscribing is asynchronous: keep writing until the update arrives.
	assert.Eventually(t, func() bool {
		if self.SetMuteUntil(ctx, channel, until) != nil || peer.SetMuteUntil(ctx, chat, until) != nil {
			return false
		}
		applied, ok := got.get(chat)
		return ok && applied.Equal(until)
	}, 5*time.Second, 50*time.Millisecond)

	_, ok := got.get(channel)
	assert.False(t, ok, "own writes are not applied twice")

	stored, found, err := peer.GetMuteUntil(ctx, chat)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, until.Equal(stored))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
