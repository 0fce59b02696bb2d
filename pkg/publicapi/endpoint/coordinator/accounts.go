package coordinator

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
)

func (e *Endpoint) balance(c echo.Context) error {
	identity := c.Param("identity")
	balance, err := e.ledger.Balance(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apimodels.BalanceResponse{
		Identity: identity,
		Balance:  balance,
	})
}

func (e *Endpoint) history(c echo.Context) error {
	identity := c.Param("identity")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := e.ledger.History(c.Request().Context(), identity, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apimodels.HistoryResponse{
		Identity: identity,
		Entries:  entries,
	})
}
