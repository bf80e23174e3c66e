package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// The journal writes one row per mute; a handful of connections is plenty.
	defaultMaxConns    = 4
	defaultMaxIdleTime = 5 * time.Minute
	applicationName    = "cooldown"
)

// Connect opens a pool for the mute journal and verifies it. Pool limits given
// in the URL (pool_max_conns, pool_max_conn_idle_time) win over the defaults.
// m may be nil.
func Connect(ctx context.Context, databaseURL string, m *metrics.StorageMetrics) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	applyPoolDefaults(poolCfg, databaseURL)
	if m != nil {
		poolCfg.ConnConfig.Tracer = NewMetricsTracer(m)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"sslmode", sslMode(databaseURL),
		"max_conns", poolCfg.MaxConns,
	)
	return pool, nil
}

func applyPoolDefaults(cfg *pgxpool.Config, databaseURL string) {
	query := urlQuery(databaseURL)
	if !query.Has("pool_max_conns") {
		cfg.MaxConns = defaultMaxConns
	}
	if !query.Has("pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = defaultMaxIdleTime
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
}

func urlQuery(databaseURL string) url.Values {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func sslMode(databaseURL string) string {
	mode := strings.ToLower(urlQuery(databaseURL).Get("sslmode"))
	if mode == "" {
		return "prefer"
	}
	return mode
}

const (
	// migrationLockID is a PostgreSQL advisory lock ID for coordinating migrations.
	// Value: 0x636f6f6c646f ("cooldo" in ASCII hex)
	migrationLockID             = 0x636f6f6c646f
	migrationLockReleaseTimeout = 5 * time.Second
)

// RunMigrationsWithLock migrates the schema while holding an advisory lock, so
// instances starting together don't race.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	release, err := migrationLock(ctx, conn.Conn(), migrationLockReleaseTimeout)
	if err != nil {
		return err
	}
	defer release()

	slog.Info("Running database migrations")
	return runMigrations(ctx, conn.Conn())
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, "public.schema_version")
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	currentVersion, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		slog.Debug("Could not get current DB version (likely fresh DB)", "error", err)
	} else {
		slog.Info("Current DB version", "version", currentVersion, "latest", len(migrator.Migrations))
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

func migrationLock(ctx context.Context, conn *pgx.Conn, releaseTimeout time.Duration) (func(), error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}, nil
}
