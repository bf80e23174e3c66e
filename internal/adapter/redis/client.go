package redis

import (
	"context"
	"fmt"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis server at redisURL (e.g. "redis://localhost:6379")
// and verifies the connection. Commands run behind a circuit breaker. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.StorageMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if m != nil {
		rdb.AddHook(NewMetricsHook(m))
	}
	rdb.AddHook(NewCircuitBreakerHook(DefaultBreakerConfig(), m))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
