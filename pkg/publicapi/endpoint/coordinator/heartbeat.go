package coordinator

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

// heartbeat registers or refreshes a node lease. Nodes call this on a
// cadence well inside the lease TTL; a node that stops calling simply ages
// out of discovery.
func (e *Endpoint) heartbeat(c echo.Context) error {
	ctx := c.Request().Context()

	var request apimodels.HeartbeatRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	lease := models.NodeLease{
		NodeID:     request.NodeID,
		Address:    request.Address,
		Status:     models.NodeStatus(request.Status),
		Models:     request.Models,
		Engines:    request.Engines,
		Hardware:   request.Hardware,
		Multiplier: request.Multiplier,
	}
	lease.Normalize()
	if err := lease.Validate(); err != nil {
		return models.NewBaseError("%s", err).
			WithCode(models.BadRequestError).
			WithComponent("NodeRegistry")
	}

	if err := e.store.RegisterOrRefresh(ctx, lease); err != nil {
		return err
	}
	registered, err := e.store.Get(ctx, lease.NodeID)
	if err != nil {
		return err
	}

	if live, err := e.store.List(ctx); err == nil {
		telemetry.NodesLive.Set(float64(len(live)))
	}

	return c.JSON(http.StatusOK, apimodels.HeartbeatResponse{
		Lease: registered,
	})
}
