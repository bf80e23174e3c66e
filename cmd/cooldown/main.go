package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/gateway"
	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/httpserver"
	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/postgres"
	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/redis"
	"github.com/CaramelFur/Telegram-Cooldown/internal/app"
	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/muter"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/config"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/logging"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/retry"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/version"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// startupPolicy retries backend connections while the containers next to us boot.
var startupPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	MaxBackoff:     10 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Backend not reachable yet, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func retryAll(error) retry.Action { return retry.Retry }

func runGracefulShutdown(srv *httpserver.Server, stopDispatcher context.CancelFunc, dispatcherWg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopDispatcher()
		dispatcherWg.Wait()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.StorageMetrics) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, mute journal disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := retry.Do(ctx, startupPolicy, retryAll, func(ctx context.Context) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return postgres.Connect(ctx, cfg.DatabaseURL, m)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, m *metrics.StorageMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, mute state is cached in memory only")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := retry.Do(ctx, startupPolicy, retryAll, func(ctx context.Context) (*goredis.Client, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return redis.NewClient(ctx, cfg.RedisURL, m)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupGateway(cfg *config.Config, m *metrics.GatewayMetrics) *gateway.Client {
	client, err := gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken,
		gateway.WithMaxRetries(cfg.GatewayMaxRetries),
		gateway.WithMetrics(m),
		gateway.WithLogger(slog.Default()),
	)
	if err != nil {
		slog.Error("Failed to create gateway client", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	muteMetrics := metrics.NewMuteMetrics(reg)
	cacheMetrics := metrics.NewCacheMetrics(reg)
	gatewayMetrics := metrics.NewGatewayMetrics(reg)
	storageMetrics := metrics.NewStorageMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	gatewayClient := setupGateway(cfg, gatewayMetrics)
	healthChecks := []httpserver.HealthCheck{{Name: "gateway", Check: gatewayClient.Ping}}

	// Tags this instance's shared-state writes so it can skip its own updates.
	instanceID := uuid.NewString()

	registryOpts := muter.RegistryOptions{
		Observer:            cacheMetrics,
		CredentialCacheSize: cfg.CredentialCacheSize,
	}
	redisClient := setupRedis(cfg, storageMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		registryOpts.Shared = redis.NewMuteStateStore(redisClient, clock, redis.DefaultStatusGrace, instanceID)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	serviceOpts := app.ServiceOptions{
		Metrics:    muteMetrics,
		SelfUserID: cfg.SelfUserID,
		Notifier: gateway.NewNotifier(gatewayClient, cfg.NotifyRatePerMinute, func() {
			gatewayMetrics.NotificationsDropped.Inc()
		}),
	}
	if pool := setupDB(cfg, storageMetrics); pool != nil {
		defer pool.Close()
		serviceOpts.Journal = postgres.NewMuteJournalRepo(pool)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	muterCfg := muter.Config{
		InitialWindow: cfg.InitialWindow.Duration(),
		Cooldown:      cfg.Cooldown.Duration(),
		Limit:         cfg.Limit,
	}
	registry, err := muter.NewRegistry(muterCfg, gatewayClient, clock, registryOpts)
	if err != nil {
		slog.Error("Failed to create muter registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Muter configured", "initial_window", muterCfg.InitialWindow, "cooldown", muterCfg.Cooldown, "limit", muterCfg.Limit, "instance_id", instanceID)

	appSvc := app.NewService(registry, gatewayClient, clock, serviceOpts)

	receiver := gateway.NewWebhookReceiver(cfg.WebhookSecret, cfg.EventBufferSize, clock, gatewayMetrics)
	var source domain.MessageSource = receiver

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	var dispatcherWg sync.WaitGroup
	dispatcher := app.NewDispatcher(appSvc, 0)
	dispatcherWg.Go(func() { dispatcher.Run(dispatcherCtx, source) })
	if redisClient != nil {
		subscriber := redis.NewMuteStateSubscriber(redisClient, instanceID, registry.ApplyPeerUpdate)
		dispatcherWg.Go(func() { subscriber.Run(dispatcherCtx) })
	}

	srv := httpserver.NewServer(cfg, appSvc, receiver, httpserver.Options{
		MetricsHandler: metrics.Handler(reg),
		HTTPMetrics:    httpMetrics,
		HealthChecks:   healthChecks,
	})

	done := runGracefulShutdown(srv, stopDispatcher, &dispatcherWg)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
