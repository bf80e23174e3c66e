package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/muter"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Event results reported on the events_processed metric besides the muter outcomes.
const (
	resultError  = "error"
	resultSelf   = "self"
	resultDirect = "direct"
)

const (
	commandIssued  = "issued"
	commandFailed  = "failed"
	journalTimeout = 5 * time.Second
)

// DefaultCommandPolicy retries mute commands that hit transient gateway failures.
// Rate-limited commands wait longer before the next attempt.
func DefaultCommandPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		RateLimitBackoff: 5 * time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// ServiceOptions holds the optional collaborators of a Service.
type ServiceOptions struct {
	// Notifier may be nil, then mutes are not acknowledged.
	Notifier domain.NotificationSink
	// Journal may be nil, then mutes are not recorded.
	Journal domain.MuteJournal
	// Metrics may be nil.
	Metrics *metrics.MuteMetrics
	// SelfUserID identifies the account's own messages, which never count.
	SelfUserID string
	// CommandPolicy defaults to DefaultCommandPolicy.
	CommandPolicy *retry.Policy
}

// Service is the application layer. It turns muter decisions into mute commands,
// acknowledgements and journal entries.
type Service struct {
	registry      *muter.Registry
	issuer        domain.MuteCommandIssuer
	notifier      domain.NotificationSink
	journal       domain.MuteJournal
	metrics       *metrics.MuteMetrics
	clock         clockwork.Clock
	selfUserID    string
	commandPolicy retry.Policy
}

func NewService(registry *muter.Registry, issuer domain.MuteCommandIssuer, clock clockwork.Clock, opts ServiceOptions) *Service {
	policy := DefaultCommandPolicy()
	if opts.CommandPolicy != nil {
		policy = *opts.CommandPolicy
	}
	if policy.Clock == nil {
		policy.Clock = clock
	}

	return &Service{
		registry:      registry,
		issuer:        issuer,
		notifier:      opts.Notifier,
		journal:       opts.Journal,
		metrics:       opts.Metrics,
		clock:         clock,
		selfUserID:    opts.SelfUserID,
		commandPolicy: policy,
	}
}

// Handle routes an inbound event to its use case.
func (s *Service) Handle(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.MessageEvent:
		_, err := s.HandleMessage(ctx, e)
		return err
	case domain.SettingsChangedEvent:
		s.HandleSettingsChanged(ctx, e)
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", ev)
		return nil
	}
}

// HandleMessage counts a message and mutes the conversation when it gets too busy.
// The returned error is a failed status lookup; a failed mute command is logged
// and journaled but the decision stands.
func (s *Service) HandleMessage(ctx context.Context, ev domain.MessageEvent) (muter.Decision, error) {
	conv := ev.Conversation

	if s.selfUserID != "" && ev.SenderID == s.selfUserID {
		s.recordEvent(resultSelf)
		return muter.Decision{Outcome: muter.OutcomeIgnored}, nil
	}
	if conv.Class == domain.ClassUser {
		slog.InfoContext(ctx, "Received direct message", "conversation", conv.String(), "sender_id", ev.SenderID)
		s.recordEvent(resultDirect)
		return muter.Decision{Outcome: muter.OutcomeIgnored}, nil
	}

	start := s.clock.Now()
	var queued time.Duration
	if !ev.ReceivedAt.IsZero() {
		queued = start.Sub(ev.ReceivedAt)
		if s.metrics != nil {
			s.metrics.QueueDelay.Observe(queued.Seconds())
		}
	}

	decision, err := s.registry.OnMessage(ctx, conv)
	if s.metrics != nil {
		s.metrics.DecisionDuration.Observe(s.clock.Since(start).Seconds())
		s.metrics.Tracked.Set(float64(s.registry.Len()))
	}
	if err != nil {
		s.recordEvent(resultError)
		return muter.Decision{}, err
	}
	s.recordEvent(decision.Outcome.String())

	slog.DebugContext(ctx, "Counted message", "conversation", conv.String(), "outcome", decision.Outcome.String(), "queued", queued)

	if decision.Mute() {
		s.applyMute(ctx, conv, decision)
	}
	return decision, nil
}

// HandleSettingsChanged records notification settings changed outside the service.
func (s *Service) HandleSettingsChanged(ctx context.Context, ev domain.SettingsChangedEvent) {
	s.registry.OnSettingsChanged(ctx, ev.Conversation, ev.MuteUntil, ev.Silent)
	if s.metrics != nil {
		s.metrics.Tracked.Set(float64(s.registry.Len()))
	}
}

// ConversationState returns the cached view of a conversation.
func (s *Service) ConversationState(conv domain.Conversation) muter.ConversationState {
	return s.registry.Snapshot(conv)
}

// RecentMutes lists the latest journaled mute decisions.
func (s *Service) RecentMutes(ctx context.Context, limit int) ([]domain.MuteRecord, error) {
	if s.journal == nil {
		return nil, domain.ErrJournalDisabled
	}
	return s.journal.ListRecent(ctx, limit)
}

func (s *Service) applyMute(ctx context.Context, conv domain.Conversation, decision muter.Decision) {
	issued := s.issueMute(ctx, conv, decision.Until)

	if issued {
		slog.InfoContext(ctx, "Muted conversation", "conversation", conv.String(), "mute_until", decision.Until.Unix(), "escalated", decision.Escalated)
		s.notify(ctx, conv, decision.Until)
	}

	s.record(ctx, domain.MuteRecord{
		ID:           uuid.New(),
		Conversation: conv,
		MuteUntil:    decision.Until,
		Escalated:    decision.Escalated,
		Issued:       issued,
		CreatedAt:    s.clock.Now(),
	})
}

func (s *Service) issueMute(ctx context.Context, conv domain.Conversation, until time.Time) bool {
	credential, err := s.registry.Credential(ctx, conv)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve credential for mute command", "conversation", conv.String(), "error", err)
		s.recordCommand(conv, commandFailed)
		return false
	}

	policy := s.commandPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Mute command failed, retrying", "conversation", conv.String(), "attempt", attempt, "backoff", backoff, "error", err)
	}

	err = retry.DoVoid(ctx, policy, classifyCommandError, func(ctx context.Context) error {
		return s.issuer.SetMute(ctx, conv, credential, until)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue mute command", "conversation", conv.String(), "mute_until", until.Unix(), "error", err)
		s.recordCommand(conv, commandFailed)
		return false
	}

	s.recordCommand(conv, commandIssued)
	return true
}

func (s *Service) notify(ctx context.Context, conv domain.Conversation, until time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyMuted(ctx, conv, until); err != nil {
		slog.WarnContext(ctx, "Failed to send mute notice", "conversation", conv.String(), "error", err)
	}
}

func (s *Service) record(ctx context.Context, rec domain.MuteRecord) {
	if s.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	if err := s.journal.Record(ctx, rec); err != nil {
		slog.WarnContext(ctx, "Failed to journal mute decision", "conversation", rec.Conversation.String(), "error", err)
	}
}

func (s *Service) recordEvent(result string) {
	if s.metrics != nil {
		s.metrics.EventsProcessed.WithLabelValues(result).Inc()
	}
}

func (s *Service) recordCommand(conv domain.Conversation, outcome string) {
	if s.metrics != nil {
		s.metrics.MuteCommands.WithLabelValues(string(conv.Class), outcome).Inc()
	}
}

func classifyCommandError(err error) retry.Action {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return retry.After
	case errors.Is(err, domain.ErrGatewayRejected),
		errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	default:
		return retry.Retry
	}
}
