package nodegate

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/ticket"
)

// claimsContextKey is the echo context key the validated ticket claims are
// stored under.
const claimsContextKey = "troop-ticket-claims"

// RequireTicket is the worker-side admission gate: every inference request
// must carry a capability ticket minted by the coordinator for this node.
// Verification is fully offline against the cached public key.
func RequireTicket(verifier *ticket.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			serialized, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := verifier.Verify(serialized)
			if err != nil {
				log.Ctx(c.Request().Context()).Warn().
					Err(err).
					Str("remote", c.RealIP()).
					Msg("rejected capability ticket")
				return err
			}

			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// ClaimsFromContext returns the ticket claims stored by RequireTicket, or
// nil when the request did not pass through the gate.
func ClaimsFromContext(c echo.Context) *ticket.Claims {
	claims, _ := c.Get(claimsContextKey).(*ticket.Claims)
	return claims
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", models.NewBaseError("missing bearer capability ticket").
			WithCode(models.MalformedTicket).
			WithComponent("NodeGate").
			WithHTTPStatusCode(http.StatusUnauthorized).
			WithHint("authorize the job with the coordinator and present the returned ticket")
	}
	return strings.TrimPrefix(header, prefix), nil
}
