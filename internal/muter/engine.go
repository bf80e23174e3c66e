package muter

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultInitialWindow = 120 * time.Second
	DefaultCooldown      = 5 * time.Minute
	DefaultLimit         = 3
)

// Config holds the thresholds shared by every engine of a registry.
type Config struct {
	// InitialWindow is how long a burst may take to reach Limit, and how soon
	// after a computed mute expiry new traffic triggers an immediate re-mute.
	InitialWindow time.Duration
	// Cooldown is the length of each mute.
	Cooldown time.Duration
	// Limit is the number of messages within InitialWindow that triggers a mute.
	Limit int
}

// DefaultConfig returns 3 messages per 2 minutes, muted for 5 minutes.
func DefaultConfig() Config {
	return Config{
		InitialWindow: DefaultInitialWindow,
		Cooldown:      DefaultCooldown,
		Limit:         DefaultLimit,
	}
}

// Validate rejects configs that would make every message (or no message) mute.
func (c Config) Validate() error {
	if c.InitialWindow <= 0 {
		return fmt.Errorf("initial window must be positive, got %s", c.InitialWindow)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %s", c.Cooldown)
	}
	if c.Limit < 1 {
		return fmt.Errorf("limit must be at least 1, got %d", c.Limit)
	}
	return nil
}

// Outcome describes what happened to an observed message.
type Outcome int

const (
	OutcomeIgnored      Outcome = iota // conversation class is not handled
	OutcomeAlreadyMuted                // conversation is muted, message dropped
	OutcomeCounted                     // counted, below the limit
	OutcomeMute                        // limit reached, conversation must be muted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAlreadyMuted:
		return "already_muted"
	case OutcomeCounted:
		return "counted"
	case OutcomeMute:
		return "mute"
	default:
		return "unknown"
	}
}

// Decision is the result of counting one message.
type Decision struct {
	Outcome Outcome
	// Until is the mute expiry, set only for OutcomeMute.
	Until time.Time
	// Escalated is set when the limit was forced because the conversation
	// resumed right after its previous mute.
	Escalated bool
}

// Mute reports whether a mute command must be issued.
func (d Decision) Mute() bool {
	return d.Outcome == OutcomeMute
}

// EngineState is a read-only view of an engine.
type EngineState struct {
	Count          int
	LastMuteUntil  time.Time
	WindowDeadline time.Time
}

// Engine counts messages of a single conversation and decides when to mute it.
//
// The window reset is a deadline checked on the next access rather than a
// running timer: moving the deadline is the cancel-and-reschedule, and a
// deadline in the past is a reset that has fired.
type Engine struct {
	cfg   Config
	clock clockwork.Clock

	mu             sync.Mutex
	count          int
	lastMuteUntil  time.Time
	windowDeadline time.Time
}

func NewEngine(cfg Config, clock clockwork.Clock) *Engine {
	return &Engine{
		cfg:   cfg,
		clock: clock,
	}
}

// CountMessage records one message and returns the decision for it.
func (e *Engine) CountMessage() Decision {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireWindow(now)

	e.count++
	e.windowDeadline = time.Time{}

	// Compared against the computed expiry, not the time the mute started:
	// anything before lastMuteUntil+InitialWindow escalates, including traffic
	// that slips through while the mute is still running.
	escalated := false
	if !e.lastMuteUntil.IsZero() && now.Sub(e.lastMuteUntil) < e.cfg.InitialWindow {
		e.count = e.cfg.Limit
		escalated = true
	}

	e.windowDeadline = now.Add(e.cfg.InitialWindow)

	if e.count < 0 {
		panic(fmt.Sprintf("muter: negative message count %d", e.count))
	}

	if e.count < e.cfg.Limit {
		return Decision{Outcome: OutcomeCounted}
	}

	e.lastMuteUntil = now.Add(e.cfg.Cooldown)
	return Decision{
		Outcome:   OutcomeMute,
		Until:     e.lastMuteUntil,
		Escalated: escalated,
	}
}

// State returns the engine state as of now. A window that has run out is
// reported as reset without mutating the engine.
func (e *Engine) State() EngineState {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	state := EngineState{
		Count:          e.count,
		LastMuteUntil:  e.lastMuteUntil,
		WindowDeadline: e.windowDeadline,
	}
	if windowExpired(e.windowDeadline, now) {
		state.Count = 0
		state.WindowDeadline = time.Time{}
	}
	return state
}

func (e *Engine) expireWindow(now time.Time) {
	if windowExpired(e.windowDeadline, now) {
		e.count = 0
		e.windowDeadline = time.Time{}
	}
}

func windowExpired(deadline, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}
