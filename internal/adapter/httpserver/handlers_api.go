package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/CaramelFur/Telegram-Cooldown/internal/muter"
	apperrors "github.com/CaramelFur/Telegram-Cooldown/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const defaultMutesLimit = 50

type conversationResponse struct {
	Class          string `json:"class"`
	ID             string `json:"id"`
	StatusKnown    bool   `json:"status_known"`
	Muted          bool   `json:"muted"`
	MuteUntil      *int64 `json:"mute_until,omitempty"`
	Tracked        bool   `json:"tracked"`
	MessageCount   int    `json:"message_count"`
	WindowDeadline *int64 `json:"window_deadline,omitempty"`
	LastMuteUntil  *int64 `json:"last_mute_until,omitempty"`
}

type muteRecordResponse struct {
	ID             string    `json:"id"`
	Class          string    `json:"class"`
	ConversationID string    `json:"conversation_id"`
	MuteUntil      int64     `json:"mute_until"`
	Escalated      bool      `json:"escalated"`
	Issued         bool      `json:"issued"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Server) registerAPIRoutes(rateLimiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api", rateLimiter)
	api.GET("/conversations/:class/:id", s.handleConversation)
	api.GET("/mutes", s.handleRecentMutes)
}

func (s *Server) handleConversation(c echo.Context) error {
	class, err := domain.ParseConversationClass(c.Param("class"))
	if err != nil {
		return apperrors.AsStructuredError(err).WithContext("class", c.Param("class"))
	}
	id := c.Param("id")
	if id == "" {
		return apperrors.ValidationError("conversation id is required")
	}

	state := s.app.ConversationState(domain.Conversation{ID: id, Class: class})
	if err := c.JSON(http.StatusOK, toConversationResponse(state)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRecentMutes(c echo.Context) error {
	limit := defaultMutesLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apperrors.ValidationError("limit must be a positive integer").WithContext("limit", raw)
		}
		limit = n
	}

	records, err := s.app.RecentMutes(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	response := make([]muteRecordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, muteRecordResponse{
			ID:             rec.ID.String(),
			Class:          string(rec.Conversation.Class),
			ConversationID: rec.Conversation.ID,
			MuteUntil:      rec.MuteUntil.Unix(),
			Escalated:      rec.Escalated,
			Issued:         rec.Issued,
			CreatedAt:      rec.CreatedAt.UTC(),
		})
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func toConversationResponse(state muter.ConversationState) conversationResponse {
	resp := conversationResponse{
		Class:        string(state.Conversation.Class),
		ID:           state.Conversation.ID,
		StatusKnown:  state.StatusKnown,
		Muted:        state.Muted,
		Tracked:      state.Tracked,
		MessageCount: state.Engine.Count,
	}
	if state.StatusKnown {
		resp.MuteUntil = unixOrNil(state.MuteUntil)
	}
	resp.WindowDeadline = unixOrNil(state.Engine.WindowDeadline)
	resp.LastMuteUntil = unixOrNil(state.Engine.LastMuteUntil)
	return resp
}

func unixOrNil(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	v := t.Unix()
	return &v
}
