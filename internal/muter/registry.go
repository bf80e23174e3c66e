package muter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCredentialCacheSize = 4096
	// fetchTimeout bounds a status fetch, which outlives the caller that started it.
	fetchTimeout = 15 * time.Second
)

// Cache layers reported to the CacheObserver.
const (
	LayerMemory = "memory"
	LayerShared = "shared"
)

// CacheObserver receives mute-status cache lookups, by layer.
type CacheObserver interface {
	ObserveLookup(layer string, hit bool)
}

// RegistryOptions holds the optional collaborators of a Registry.
type RegistryOptions struct {
	// Shared is consulted after a local miss and written through on every
	// update. May be nil.
	Shared domain.MuteStateStore
	// Observer may be nil.
	Observer CacheObserver
	// CredentialCacheSize bounds the number of cached channel credentials.
	// Zero means the default.
	CredentialCacheSize int
}

// ConversationState is a read-only view of what the registry knows about a conversation.
type ConversationState struct {
	Conversation domain.Conversation
	MuteUntil    time.Time
	StatusKnown  bool
	Muted        bool
	Tracked      bool
	Engine       EngineState
}

// Registry routes message events to per-conversation engines and caches the
// mute-until timestamp of every conversation it has seen.
type Registry struct {
	cfg      Config
	clock    clockwork.Clock
	provider domain.MuteStatusProvider
	shared   domain.MuteStateStore
	observer CacheObserver

	mu         sync.RWMutex
	mutedUntil map[domain.Conversation]time.Time
	// writes counts local cache writes per conversation, so a status fetch
	// can tell whether a newer value landed while it was in flight.
	writes  map[domain.Conversation]uint64
	engines map[domain.Conversation]*Engine

	credentials *lru.Cache[domain.Conversation, string]
	fetchGroup  singleflight.Group
}

func NewRegistry(cfg Config, provider domain.MuteStatusProvider, clock clockwork.Clock, opts RegistryOptions) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid muter config: %w", err)
	}

	size := opts.CredentialCacheSize
	if size <= 0 {
		size = defaultCredentialCacheSize
	}
	credentials, err := lru.New[domain.Conversation, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cache: %w", err)
	}

	return &Registry{
		cfg:         cfg,
		clock:       clock,
		provider:    provider,
		shared:      opts.Shared,
		observer:    opts.Observer,
		mutedUntil:  make(map[domain.Conversation]time.Time),
		writes:      make(map[domain.Conversation]uint64),
		engines:     make(map[domain.Conversation]*Engine),
		credentials: credentials,
	}, nil
}

// IsMuted reports whether conv is muted right now. The status is fetched from
// the provider only when neither the local nor the shared cache knows it.
// Concurrent lookups of the same conversation share one fetch, and a caller
// giving up does not fail the others. Classes the muter doesn't handle are
// never muted.
func (r *Registry) IsMuted(ctx context.Context, conv domain.Conversation) (bool, error) {
	if !conv.Class.Mutable() {
		return false, nil
	}

	until, err := r.muteUntil(ctx, conv)
	if err != nil {
		return false, err
	}
	return until.After(r.clock.Now()), nil
}

// OnMessage counts a message unless the conversation is already muted. A
// decision with OutcomeMute has already been written to the cache; issuing
// the mute command is up to the caller.
func (r *Registry) OnMessage(ctx context.Context, conv domain.Conversation) (Decision, error) {
	if !conv.Class.Mutable() {
		slog.DebugContext(ctx, "Ignoring message in unhandled conversation class", "conversation", conv.String())
		return Decision{Outcome: OutcomeIgnored}, nil
	}

	muted, err := r.IsMuted(ctx, conv)
	if err != nil {
		return Decision{}, err
	}
	if muted {
		return Decision{Outcome: OutcomeAlreadyMuted}, nil
	}

	decision := r.engineFor(conv).CountMessage()
	if !decision.Mute() {
		return decision, nil
	}

	if decision.Escalated {
		slog.InfoContext(ctx, "Conversation resumed right after mute, re-muting", "conversation", conv.String())
	}
	r.setMuteUntil(ctx, conv, decision.Until)
	return decision, nil
}

// OnSettingsChanged overwrites the cached mute-until with settings changed
// outside the service. silent means muted until changed again.
func (r *Registry) OnSettingsChanged(ctx context.Context, conv domain.Conversation, muteUntil time.Time, silent bool) {
	if !conv.Class.Mutable() {
		return
	}

	until := domain.EffectiveMuteUntil(muteUntil, silent)
	r.setMuteUntil(ctx, conv, until)
	slog.InfoContext(ctx, "Updated mute-until from settings change", "conversation", conv.String(), "mute_until", until.Unix())
}

// ApplyPeerUpdate records a mute-until another instance wrote to the shared
// store. Only the local cache changes.
func (r *Registry) ApplyPeerUpdate(conv domain.Conversation, until time.Time) {
	if !conv.Class.Mutable() {
		return
	}
	r.cacheLocal(conv, until)
}

// Credential returns the access credential needed to mute conv. Chats need
// none. Channel credentials are fetched once and cached.
func (r *Registry) Credential(ctx context.Context, conv domain.Conversation) (string, error) {
	if !conv.Class.NeedsCredential() {
		return "", nil
	}
	if credential, ok := r.credentials.Get(conv); ok {
		return credential, nil
	}

	status, err := r.provider.FetchStatus(ctx, conv)
	if err != nil {
		return "", fmt.Errorf("failed to fetch credential for %s: %w", conv, err)
	}
	if status.Credential == "" {
		return "", fmt.Errorf("%w for %s", domain.ErrMissingCredential, conv)
	}

	r.credentials.Add(conv, status.Credential)
	return status.Credential, nil
}

// Snapshot returns what the registry currently knows about conv without any
// remote lookup.
func (r *Registry) Snapshot(conv domain.Conversation) ConversationState {
	r.mu.RLock()
	until, known := r.mutedUntil[conv]
	engine, tracked := r.engines[conv]
	r.mu.RUnlock()

	state := ConversationState{
		Conversation: conv,
		MuteUntil:    until,
		StatusKnown:  known,
		Muted:        known && until.After(r.clock.Now()),
		Tracked:      tracked,
	}
	if tracked {
		state.Engine = engine.State()
	}
	return state
}

// Len returns the number of conversations with a cached mute status.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mutedUntil)
}

func (r *Registry) muteUntil(ctx context.Context, conv domain.Conversation) (time.Time, error) {
	// Layer 1: process-local cache
	until, gen, ok := r.cached(conv)
	if ok {
		r.observe(LayerMemory, true)
		return until, nil
	}
	r.observe(LayerMemory, false)

	// Layer 2: shared store
	if r.shared != nil {
		until, found, err := r.shared.GetMuteUntil(ctx, conv)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Shared mute state lookup failed, querying gateway", "conversation", conv.String(), "error", err)
		case found:
			r.observe(LayerShared, true)
			until, _ = r.storeIfUnchanged(conv, gen, until)
			return until, nil
		default:
			r.observe(LayerShared, false)
		}
	}

	// Layer 3: the messaging service
	ch := r.fetchGroup.DoChan(conv.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return r.fetch(fetchCtx, conv, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return time.Time{}, res.Err
		}
		return res.Val.(time.Time), nil
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// fetch asks the provider and caches the answer as a read: anything written
// to conv after gen is newer and wins.
func (r *Registry) fetch(ctx context.Context, conv domain.Conversation, gen uint64) (time.Time, error) {
	status, err := r.provider.FetchStatus(ctx, conv)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch mute status for %s: %w", conv, err)
	}

	if conv.Class.NeedsCredential() && status.Credential != "" {
		r.credentials.Add(conv, status.Credential)
	}

	fetched := status.EffectiveUntil()
	until, ok := r.storeIfUnchanged(conv, gen, fetched)
	if !ok {
		slog.DebugContext(ctx, "Discarding fetched mute status, cache was updated meanwhile", "conversation", conv.String())
		return until, nil
	}
	if r.shared == nil {
		return fetched, nil
	}

	gen++
	stored, err := r.shared.SeedMuteUntil(ctx, conv, fetched)
	if err != nil {
		slog.WarnContext(ctx, "Failed to write shared mute state", "conversation", conv.String(), "error", err)
		return fetched, nil
	}
	if stored {
		return fetched, nil
	}

	// Another instance wrote first; its value is newer than our read.
	shared, found, err := r.shared.GetMuteUntil(ctx, conv)
	if err != nil || !found {
		return fetched, nil
	}
	until, _ = r.storeIfUnchanged(conv, gen, shared)
	return until, nil
}

func (r *Registry) engineFor(conv domain.Conversation) *Engine {
	r.mu.RLock()
	engine, ok := r.engines[conv]
	r.mu.RUnlock()
	if ok {
		return engine
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[conv]; ok {
		return engine
	}
	engine = NewEngine(r.cfg, r.clock)
	r.engines[conv] = engine
	return engine
}

func (r *Registry) cached(conv domain.Conversation) (time.Time, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	until, ok := r.mutedUntil[conv]
	return until, r.writes[conv], ok
}

func (r *Registry) cacheLocal(conv domain.Conversation, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(conv, until)
}

// storeIfUnchanged caches until unless conv was written after gen was taken.
// It returns whichever value is now cached.
func (r *Registry) storeIfUnchanged(conv domain.Conversation, gen uint64, until time.Time) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writes[conv] != gen {
		return r.mutedUntil[conv], false
	}
	r.storeLocked(conv, until)
	return until, true
}

func (r *Registry) storeLocked(conv domain.Conversation, until time.Time) {
	r.mutedUntil[conv] = until
	r.writes[conv]++
}

func (r *Registry) setMuteUntil(ctx context.Context, conv domain.Conversation, until time.Time) {
	r.cacheLocal(conv, until)

	if r.shared == nil {
		return
	}
	if err := r.shared.SetMuteUntil(ctx, conv, until); err != nil {
		slog.WarnContext(ctx, "Failed to write shared mute state", "conversation", conv.String(), "error", err)
	}
}

func (r *Registry) observe(layer string, hit bool) {
	if r.observer != nil {
		r.observer.ObserveLookup(layer, hit)
	}
}
