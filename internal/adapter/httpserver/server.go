package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/adapter/metrics"
	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/muter"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/config"
	"github.com/labstack/echo/v4"
)

type appService interface {
	ConversationState(conv domain.Conversation) muter.ConversationState
	RecentMutes(ctx context.Context, limit int) ([]domain.MuteRecord, error)
}

// Options holds the optional parts of a Server.
type Options struct {
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// HTTPMetrics may be nil.
	HTTPMetrics  *metrics.HTTPMetrics
	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app            appService
	webhookHandler http.Handler
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, webhookHandler http.Handler, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		app:            app,
		webhookHandler: webhookHandler,
		metricsHandler: opts.MetricsHandler,
		httpMetrics:    opts.HTTPMetrics,
		healthChecks:   opts.HealthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
