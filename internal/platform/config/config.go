package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	InitialWindow Seconds `env:"TIMEWINDOW_INITIAL" default:"120"`
	Cooldown      Seconds `env:"TIMEWINDOW_COOLDOWN" default:"300"`
	Limit         int     `env:"LIMIT" default:"3"`

	GatewayURL          string `env:"GATEWAY_URL"`
	GatewayToken        string `env:"GATEWAY_TOKEN"`
	GatewayMaxRetries   int    `env:"GATEWAY_MAX_RETRIES" default:"3"`
	WebhookSecret       string `env:"WEBHOOK_SECRET"`
	SelfUserID          string `env:"SELF_USER_ID"`
	NotifyRatePerMinute int    `env:"NOTIFY_RATE_PER_MINUTE" default:"20"`

	CredentialCacheSize int `env:"CREDENTIAL_CACHE_SIZE" default:"4096"`
	EventBufferSize     int `env:"EVENT_BUFFER_SIZE" default:"256"`

	// Optional backends. Empty disables them.
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// Seconds is a duration that also accepts a bare, possibly fractional,
// number of seconds.
type Seconds time.Duration

func (s *Seconds) UnmarshalText(text []byte) error {
	if f, err := strconv.ParseFloat(string(text), 64); err == nil {
		if math.IsNaN(f) || math.Abs(f) > math.MaxInt64/float64(time.Second) {
			return fmt.Errorf("invalid duration %q: out of range", text)
		}
		*s = Seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*s = Seconds(d)
	return nil
}

func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"GATEWAY_URL", cfg.GatewayURL},
		{"GATEWAY_TOKEN", cfg.GatewayToken},
		{"WEBHOOK_SECRET", cfg.WebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if u, err := url.Parse(cfg.GatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GATEWAY_URL must be an absolute URL, got %q", cfg.GatewayURL)
	}

	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if cfg.InitialWindow <= 0 {
		return errors.New("TIMEWINDOW_INITIAL must be positive")
	}
	if cfg.Cooldown <= 0 {
		return errors.New("TIMEWINDOW_COOLDOWN must be positive")
	}
	if cfg.Limit < 1 {
		return fmt.Errorf("LIMIT must be at least 1, got %d", cfg.Limit)
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if err := requireSecureSSL(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	if cfg.GatewayMaxRetries < 0 {
		return fmt.Errorf("GATEWAY_MAX_RETRIES must not be negative, got %d", cfg.GatewayMaxRetries)
	}
	if cfg.NotifyRatePerMinute < 1 {
		return fmt.Errorf("NOTIFY_RATE_PER_MINUTE must be at least 1, got %d", cfg.NotifyRatePerMinute)
	}
	if cfg.CredentialCacheSize < 1 {
		return fmt.Errorf("CREDENTIAL_CACHE_SIZE must be at least 1, got %d", cfg.CredentialCacheSize)
	}
	if cfg.EventBufferSize < 1 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be at least 1, got %d", cfg.EventBufferSize)
	}

	return nil
}

func requireSecureSSL(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
