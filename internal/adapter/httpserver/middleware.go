package httpserver

import (
	"github.com/CaramelFur/Telegram-Cooldown/internal/platform/correlation"
	"github.com/labstack/echo/v4"
)

// correlationMiddleware reuses the caller's correlation ID when it sends a
// sane one and echoes the ID back on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, id := correlation.Continue(c.Request().Context(), c.Request().Header.Get(correlation.Header))
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}
