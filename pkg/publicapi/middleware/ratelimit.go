package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/audit"
	"github.com/100monkeys-ai/monkey-troop/pkg/lib/ratelimit"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

// RateLimitTierParams configures one tier of rate limiting applied to a
// route group. Discovery routes are keyed by client IP; stricter tiers
// keyed by identity are enforced inside the handlers where the identity is
// known.
type RateLimitTierParams struct {
	Limiter *ratelimit.Limiter
	Tier    string
	Limit   int
	Window  time.Duration
	Sink    audit.Sink
}

func RateLimitByIP(params RateLimitTierParams) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result := params.Limiter.Check(c.RealIP(), params.Limit, params.Window)
			if !result.Allowed {
				telemetry.RateLimitRejections.WithLabelValues(params.Tier).Inc()
				if params.Sink != nil {
					audit.LogRateLimit(c.Request().Context(), params.Sink, c.RealIP(), params.Tier)
				}
				return NewErrRateLimited(params.Tier, result.RetryAfter)
			}
			return next(c)
		}
	}
}

func NewErrRateLimited(tier string, retryAfter time.Duration) *models.BaseError {
	return models.NewBaseError("rate limit exceeded for %s tier", tier).
		WithCode(models.RateLimited).
		WithComponent("APIServer").
		WithRetryAfter(retryAfter).
		WithHint("reduce request rate and retry after the indicated delay")
}
