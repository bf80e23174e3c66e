package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/muter"
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/config"
	"github.com/labstack/echo/v4"
)

// --- Mock implementations ---

type mockAppService struct {
	conversationStateFn func(conv domain.Conversation) muter.ConversationState
	recentMutesFn       func(ctx context.Context, limit int) ([]domain.MuteRecord, error)
}

func (m *mockAppService) ConversationState(conv domain.Conversation) muter.ConversationState {
	if m.conversationStateFn != nil {
		return m.conversationStateFn(conv)
	}
	return muter.ConversationState{Conversation: conv}
}

func (m *mockAppService) RecentMutes(ctx context.Context, limit int) ([]domain.MuteRecord, error) {
	if m.recentMutesFn != nil {
		return m.recentMutesFn(ctx, limit)
	}
	return nil, nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:      echo.New(),
		config:    &config.Config{Port: "0"},
		app:       app,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withWebhookHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.webhookHandler = h
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

func serve(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
