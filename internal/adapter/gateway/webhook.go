package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

const (
	// SignatureHeader carries "sha256=" + hex(HMAC-SHA256(secret, body)).
	SignatureHeader = "X-Gateway-Signature"

	maxWebhookBodyBytes = 64 << 10

	eventTypeMessage        = "message"
	eventTypeNotifySettings = "notify_settings"
)

var errInvalidSignature = errors.New("invalid webhook signature")

// WebhookReceiver accepts signed event deliveries from the gateway and
// publishes them on a buffered channel. It is the service's MessageSource.
type WebhookReceiver struct {
	secret  []byte
	events  chan domain.Event
	clock   clockwork.Clock
	metrics *metrics.GatewayMetrics
}

var (
	_ domain.MessageSource = (*WebhookReceiver)(nil)
	_ http.Handler         = (*WebhookReceiver)(nil)
)

// NewWebhookReceiver buffers up to bufferSize events. m may be nil.
func NewWebhookReceiver(secret string, bufferSize int, clock clockwork.Clock, m *metrics.GatewayMetrics) *WebhookReceiver {
	return &WebhookReceiver{
		secret:  []byte(secret),
		events:  make(chan domain.Event, bufferSize),
		clock:   clock,
		metrics: m,
	}
}

func (r *WebhookReceiver) Events() <-chan domain.Event {
	return r.events
}

type conversationPayload struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

type webhookPayload struct {
	Type         string              `json:"type"`
	Conversation conversationPayload `json:"conversation"`
	SenderID     string              `json:"sender_id"`
	Date         int64               `json:"date"`
	MuteUntil    int64               `json:"mute_until"`
	Silent       bool                `json:"silent"`
}

func (r *WebhookReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBodyBytes))
	if err != nil {
		r.observe("unknown", "too_large")
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := r.verify(req.Header.Get(SignatureHeader), body); err != nil {
		r.observe("unknown", "unauthorized")
		slog.WarnContext(ctx, "Rejected webhook delivery", "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		r.observe("unknown", "malformed")
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	// The correlation middleware already adopted the gateway's delivery ID.
	delivery, _ := correlation.ID(ctx)
	event, err := r.toEvent(payload, delivery)
	if err != nil {
		// Acknowledged so the gateway doesn't redeliver something we'll never handle.
		r.observe(payload.Type, "ignored")
		slog.DebugContext(ctx, "Ignoring webhook event", "type", payload.Type, "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	select {
	case r.events <- event:
		r.observe(payload.Type, "accepted")
		w.WriteHeader(http.StatusAccepted)
	default:
		r.observe(payload.Type, "dropped")
		slog.WarnContext(ctx, "Event buffer full, asking gateway to redeliver", "type", payload.Type)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "event buffer full", http.StatusServiceUnavailable)
	}
}

func (r *WebhookReceiver) verify(header string, body []byte) error {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return errInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return errInvalidSignature
	}
	if !hmac.Equal(got, Sign(r.secret, body)) {
		return errInvalidSignature
	}
	return nil
}

func (r *WebhookReceiver) toEvent(p webhookPayload, delivery string) (domain.Event, error) {
	class, err := domain.ParseConversationClass(p.Conversation.Class)
	if err != nil {
		return nil, err
	}
	if p.Conversation.ID == "" {
		return nil, errors.New("conversation id missing")
	}
	conv := domain.Conversation{ID: p.Conversation.ID, Class: class}

	switch p.Type {
	case eventTypeMessage:
		receivedAt := r.clock.Now()
		if p.Date > 0 {
			receivedAt = time.Unix(p.Date, 0)
		}
		return domain.MessageEvent{Conversation: conv, SenderID: p.SenderID, ReceivedAt: receivedAt, Delivery: delivery}, nil
	case eventTypeNotifySettings:
		return domain.SettingsChangedEvent{Conversation: conv, MuteUntil: fromUnix(p.MuteUntil), Silent: p.Silent, Delivery: delivery}, nil
	default:
		return nil, fmt.Errorf("unsupported event type %q", p.Type)
	}
}

func (r *WebhookReceiver) observe(eventType, result string) {
	if r.metrics == nil {
		return
	}
	if eventType != eventTypeMessage && eventType != eventTypeNotifySettings {
		eventType = "unknown"
	}
	r.metrics.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// Sign returns HMAC-SHA256(secret, body).
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
