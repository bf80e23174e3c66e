package httpserver

import (
	"time"

	apperrors "github.com/CaramelFur/Telegram-Cooldown/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits status API requests per client IP. Denied requests
// surface as a rate_limited error so the error middleware renders and counts
// them, with Retry-After set to the time one token takes to refill.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	refill := time.Duration(float64(time.Second) / ratePerSecond)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.RateLimitedError("rate limit exceeded").
				WithContext("client", identifier).
				WithRetryAfter(refill)
		},
	})
}
