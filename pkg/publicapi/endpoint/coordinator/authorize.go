package coordinator

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/audit"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/middleware"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

const (
	defaultMaxJobSeconds = 300
	maxJobSeconds        = 3600
)

// authorize selects a node for the requested model, reserves credit for
// the job's worst-case cost, and mints a capability ticket. The reservation
// and the ticket are scoped to the same job ID, so the worker receipt can
// only ever settle against the hold opened here.
func (e *Endpoint) authorize(c echo.Context) error {
	ctx := c.Request().Context()

	var request apimodels.AuthorizeRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if request.Identity == "" || request.Model == "" {
		return models.NewBaseError("authorize requires Identity and Model").
			WithCode(models.BadRequestError).
			WithComponent("APIServer")
	}
	maxDuration := request.MaxDurationSeconds
	if maxDuration <= 0 {
		maxDuration = defaultMaxJobSeconds
	}
	if maxDuration > maxJobSeconds {
		maxDuration = maxJobSeconds
	}

	// The inference tier is keyed by identity, not IP, so a requester
	// cannot dodge it by rotating addresses.
	result := e.limiter.Check("authorize:"+request.Identity, models.IssueRateLimit, models.RateLimitWindow)
	if !result.Allowed {
		telemetry.RateLimitRejections.WithLabelValues("inference").Inc()
		audit.LogRateLimit(ctx, e.sink, request.Identity, "inference")
		return middleware.NewErrRateLimited("inference", result.RetryAfter)
	}

	if _, err := e.ledger.EnsureAccount(ctx, request.Identity); err != nil {
		return err
	}

	lease, err := e.selector.Select(ctx, request.Model)
	if err != nil {
		if models.IsErrorWithCode(err, models.NoNodeAvailable) {
			telemetry.AuthorizationsTotal.WithLabelValues("no_node").Inc()
			audit.LogAuthorization(ctx, e.sink, request.Identity, "", "", request.Model, "no_node")
		}
		return err
	}

	serialized, jobID, err := e.authority.Issue(ctx, request.Identity, lease.NodeID, request.Model)
	if err != nil {
		return err
	}

	holdAmount := int64(float64(maxDuration) * lease.Multiplier)
	_, err = e.ledger.Reserve(ctx, request.Identity, holdAmount, jobID, lease.NodeID, lease.Multiplier)
	if err != nil {
		if models.IsErrorWithCode(err, models.InsufficientCredit) {
			telemetry.AuthorizationsTotal.WithLabelValues("insufficient_credit").Inc()
			audit.LogAuthorization(ctx, e.sink, request.Identity, lease.NodeID, jobID, request.Model, "insufficient_credit")
		}
		return err
	}

	balance, err := e.ledger.Balance(ctx, request.Identity)
	if err != nil {
		return err
	}

	telemetry.AuthorizationsTotal.WithLabelValues("authorized").Inc()
	audit.LogAuthorization(ctx, e.sink, request.Identity, lease.NodeID, jobID, request.Model, "authorized")
	return c.JSON(http.StatusOK, apimodels.AuthorizeResponse{
		Ticket:      serialized,
		JobID:       jobID,
		NodeID:      lease.NodeID,
		NodeAddress: lease.Address,
		ExpiresAt:   e.clock.Now().Add(e.authority.TTL()),
		HeldAmount:  holdAmount,
		Balance:     balance,
	})
}
