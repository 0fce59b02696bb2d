package coordinator

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/audit"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/telemetry"
)

// receipt settles a completed job from the worker's signed receipt.
func (e *Endpoint) receipt(c echo.Context) error {
	ctx := c.Request().Context()

	var request apimodels.ReceiptRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if request.JobID == "" || request.NodeID == "" || request.Signature == "" {
		return models.NewBaseError("receipt requires JobID, NodeID and Signature").
			WithCode(models.BadRequestError).
			WithComponent("APIServer")
	}

	settlement, err := e.ledger.Settle(ctx, request.JobID, request.NodeID, request.DurationSeconds, request.Signature)
	if err != nil {
		switch {
		case models.IsErrorWithCode(err, models.SignatureInvalid):
			telemetry.SettlementsTotal.WithLabelValues("signature_invalid").Inc()
			audit.LogSecurityEvent(ctx, e.sink, request.NodeID, "settle", "receipt signature rejected for job "+request.JobID)
		case models.IsErrorWithCode(err, models.NotFoundError):
			telemetry.SettlementsTotal.WithLabelValues("no_reservation").Inc()
		}
		return err
	}

	telemetry.SettlementsTotal.WithLabelValues("settled").Inc()
	telemetry.CreditSettledSeconds.Add(float64(settlement.FinalCost))
	audit.LogSettlement(ctx, e.sink, settlement.Account, settlement.NodeID, settlement.JobID, settlement.FinalCost, "settled")
	return c.JSON(http.StatusOK, apimodels.ReceiptResponse{
		Settlement: settlement,
	})
}
