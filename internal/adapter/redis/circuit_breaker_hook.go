package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

// ErrCircuitOpen is returned for commands rejected while Redis is considered down.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// BreakerConfig tunes the Redis circuit breaker.
type BreakerConfig struct {
	// FailureRate in (0,1] trips the breaker once MinRequests ran inside Window.
	FailureRate float64
	MinRequests uint
	Window      time.Duration
	// Delay is how long the breaker stays open before letting a trial command through.
	Delay time.Duration
}

// DefaultBreakerConfig trips at 60% failures over at least 5 commands in 10s
// and tries again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRate: 0.6,
		MinRequests: 5,
		Window:      10 * time.Second,
		Delay:       30 * time.Second,
	}
}

// CircuitBreakerHook fails Redis commands fast while Redis is unavailable, so
// shared mute-state lookups fall through to the gateway without waiting for
// dial timeouts. Unlike a read cache, it never serves stale values: the
// registry's own memory layer already covers that.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook builds the hook. m may be nil.
func NewCircuitBreakerHook(cfg BreakerConfig, m *metrics.StorageMetrics) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(cfg.FailureRate, cfg.MinRequests, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerChanges.WithLabelValues(e.NewState.String()).Inc()
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial rejected: %w", ErrCircuitOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis %s rejected: %w", cmd.Name(), ErrCircuitOpen)
			cmd.SetErr(err)
			return err
		}

		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline rejected: %w", ErrCircuitOpen)
		}

		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// A missing key is an answer, not a failure.
func (h *CircuitBreakerHook) record(err error) {
	if err != nil && !errors.Is(err, goredis.Nil) {
		h.cb.RecordError(err)
		return
	}
	h.cb.RecordSuccess()
}

// State returns the current breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
