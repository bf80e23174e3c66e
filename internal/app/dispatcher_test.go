package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan domain.Event
}

func (s *chanSource) Events() <-chan domain.Event { return s.ch }

type mockHandler struct {
	mu       sync.Mutex
	handleFn func(ctx context.Context, ev domain.Event) error
	events   []domain.Event
	ids      []string
}

func (m *mockHandler) Handle(ctx context.Context, ev domain.Event) error {
	id, _ := correlation.ID(ctx)
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	if m.handleFn != nil {
		return m.handleFn(ctx, ev)
	}
	return nil
}

func runDispatcher(t *testing.T, ctx context.Context, d *Dispatcher, source domain.MessageSource) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, source)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_ProcessesInOrderUntilSourceCloses(t *testing.T) {
	handler := &mockHandler{}
	source := &chanSource{ch: make(chan domain.Event, 3)}

	first := domain.MessageEvent{Conversation: testChat, SenderID: "1"}
	second := domain.SettingsChangedEvent{Conversation: testChat, Silent: true}
	third := domain.MessageEvent{Conversation: testChannel, SenderID: "2"}
	source.ch <- first
	source.ch <- second
	source.ch <- third
	close(source.ch)

	done := runDispatcher(t, context.Background(), NewDispatcher(handler, 0), source)
	waitDone(t, done)

	assert.Equal(t, []domain.Event{first, second, third}, handler.events)
}

func TestDispatcher_AssignsCorrelationIDPerEvent(t *testing.T) {
	handler := &mockHandler{}
	source := &chanSource{ch: make(chan domain.Event, 2)}
	source.ch <- domain.MessageEvent{Conversation: testChat}
	source.ch <- domain.MessageEvent{Conversation: testChat}
	close(source.ch)

	waitDone(t, runDispatcher(t, context.Background(), NewDispatcher(handler, 0), source))

	require.Len(t, handler.ids, 2)
	assert.Len(t, handler.ids[0], 8)
	assert.Len(t, handler.ids[1], 8)
	assert.NotEqual(t, handler.ids[0], handler.ids[1])
}

func TestDispatcher_ContinuesDeliveryCorrelationID(t *testing.T) {
	handler := &mockHandler{}
	source := &chanSource{ch: make(chan domain.Event, 2)}
	source.ch <- domain.MessageEvent{Conversation: testChat, Delivery: "dlv-1"}
	source.ch <- domain.SettingsChangedEvent{Conversation: testChat, Delivery: "not a valid id"}
	close(source.ch)

	waitDone(t, runDispatcher(t, context.Background(), NewDispatcher(handler, 0), source))

	require.Len(t, handler.ids, 2)
	assert.Equal(t, "dlv-1", handler.ids[0])
	assert.Len(t, handler.ids[1], 8, "unusable delivery IDs are replaced")
}

func TestDispatcher_FailedEventDoesNotStopProcessing(t *testing.T) {
	handler := &mockHandler{
		handleFn: func(_ context.Context, ev domain.Event) error {
			if msg, ok := ev.(domain.MessageEvent); ok && msg.SenderID == "bad" {
				return errors.New("status lookup failed")
			}
			return nil
		},
	}
	source := &chanSource{ch: make(chan domain.Event, 2)}
	source.ch <- domain.MessageEvent{Conversation: testChat, SenderID: "bad"}
	source.ch <- domain.MessageEvent{Conversation: testChat, SenderID: "good"}
	close(source.ch)

	waitDone(t, runDispatcher(t, context.Background(), NewDispatcher(handler, 0), source))

	assert.Len(t, handler.events, 2)
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	handler := &mockHandler{}
	source := &chanSource{ch: make(chan domain.Event)}
	ctx, cancel := context.WithCancel(context.Background())

	done := runDispatcher(t, ctx, NewDispatcher(handler, 0), source)
	cancel()
	waitDone(t, done)

	assert.Empty(t, handler.events)
}

func TestDispatcher_AppliesEventTimeout(t *testing.T) {
	var deadline time.Time
	handler := &mockHandler{
		handleFn: func(ctx context.Context, _ domain.Event) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	}
	source := &chanSource{ch: make(chan domain.Event, 1)}
	source.ch <- domain.MessageEvent{Conversation: testChat}
	close(source.ch)

	start := time.Now()
	waitDone(t, runDispatcher(t, context.Background(), NewDispatcher(handler, time.Minute), source))

	assert.WithinDuration(t, start.Add(time.Minute), deadline, 5*time.Second)
}

func TestDispatcher_DrivesService(t *testing.T) {
	svc, deps := newTestService(t, "")
	source := &chanSource{ch: make(chan domain.Event, 3)}
	for range 3 {
		source.ch <- domain.MessageEvent{Conversation: testChat, SenderID: "555"}
	}
	close(source.ch)

	waitDone(t, runDispatcher(t, context.Background(), NewDispatcher(svc, 0), source))

	assert.Len(t, deps.issuer.calls, 1)
	assert.True(t, svc.ConversationState(testChat).Muted)
}
