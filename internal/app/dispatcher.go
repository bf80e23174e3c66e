package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
)

const defaultEventTimeout = 30 * time.Second

// EventHandler processes one inbound event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// Dispatcher feeds inbound events to the handler one at a time, in arrival order.
type Dispatcher struct {
	handler      EventHandler
	eventTimeout time.Duration
}

// NewDispatcher creates a dispatcher. A zero eventTimeout means the default.
func NewDispatcher(handler EventHandler, eventTimeout time.Duration) *Dispatcher {
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}
	return &Dispatcher{handler: handler, eventTimeout: eventTimeout}
}

// Run consumes the source until ctx is cancelled or the source closes its channel.
// A failing event is logged and dropped so that one unreachable conversation
// never stalls the others.
func (d *Dispatcher) Run(ctx context.Context, source domain.MessageSource) {
	events := source.Events()
	slog.Info("Event dispatcher started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event dispatcher stopped")
			return
		case ev, ok := <-events:
			if !ok {
				slog.Info("Event source closed, dispatcher stopping")
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev domain.Event) {
	ctx, _ = correlation.Continue(ctx, ev.DeliveryID())
	ctx, cancel := context.WithTimeout(ctx, d.eventTimeout)
	defer cancel()

	if err := d.handler.Handle(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Dropping event after failed status lookup", "error", err)
	}
}
