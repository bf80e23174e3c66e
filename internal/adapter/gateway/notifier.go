package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"golang.org/x/time/rate"
)

// SelfMessenger sends a text message to the account itself.
type SelfMessenger interface {
	SendSelfMessage(ctx context.Context, text string) error
}

// Notifier tells the account owner about mutes through self messages, within
// a rate budget. Notifications over budget are dropped.
type Notifier struct {
	messenger SelfMessenger
	limiter   *rate.Limiter
	onDrop    func()
}

var _ domain.NotificationSink = (*Notifier)(nil)

// NewNotifier allows perMinute notifications per minute with bursts of the same size.
// onDrop may be nil.
func NewNotifier(messenger SelfMessenger, perMinute int, onDrop func()) *Notifier {
	perMinute = max(perMinute, 1)
	return &Notifier{
		messenger: messenger,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		onDrop:    onDrop,
	}
}

func (n *Notifier) NotifyMuted(ctx context.Context, conv domain.Conversation, until time.Time) error {
	if !n.limiter.Allow() {
		slog.WarnContext(ctx, "Notification budget exhausted, dropping mute notification", "conversation", conv.String())
		if n.onDrop != nil {
			n.onDrop()
		}
		return nil
	}

	return n.messenger.SendSelfMessage(ctx, MuteNotice(conv))
}

// MuteNotice is the text sent to the account when conv was muted.
func MuteNotice(conv domain.Conversation) string {
	return fmt.Sprintf("Muted %s %s", conv.Class, conv.ID)
}
