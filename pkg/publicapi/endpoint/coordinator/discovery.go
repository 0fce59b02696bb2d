package coordinator

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry"
)

func (e *Endpoint) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, &apimodels.HealthzResponse{
		Status: "OK",
	})
}

func (e *Endpoint) publicKey(c echo.Context) error {
	return c.JSON(http.StatusOK, apimodels.PublicKeyResponse{
		PublicKeyPEM: e.signer.PublicKeyPEM(),
		KeyID:        e.signer.KeyID(),
	})
}

// peers lists the nodes currently accepting work. Busy and offline leases
// are invisible here; requesters only care about nodes a job could land on.
func (e *Endpoint) peers(c echo.Context) error {
	filters := []registry.LeaseFilter{idleOnly}
	if model := c.QueryParam("model"); model != "" {
		filters = append(filters, func(lease models.NodeLease) bool {
			return lease.HasModel(model)
		})
	}
	leases, err := e.store.List(c.Request().Context(), filters...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apimodels.ListPeersResponse{
		Peers: leases,
	})
}

// models aggregates the idle leases into per-model availability counts.
func (e *Endpoint) models(c echo.Context) error {
	leases, err := e.store.List(c.Request().Context(), idleOnly)
	if err != nil {
		return err
	}

	type counts struct {
		total  int
		native int
	}
	byModel := make(map[string]*counts)
	for _, lease := range leases {
		for _, model := range lease.Models {
			entry, ok := byModel[model]
			if !ok {
				entry = &counts{}
				byModel[model] = entry
			}
			entry.total++
			if lease.ServesNatively(model) {
				entry.native++
			}
		}
	}

	availability := make([]apimodels.ModelAvailability, 0, len(byModel))
	for model, entry := range byModel {
		availability = append(availability, apimodels.ModelAvailability{
			Model:       model,
			NodeCount:   entry.total,
			NativeCount: entry.native,
		})
	}
	sort.Slice(availability, func(i, j int) bool {
		return availability[i].Model < availability[j].Model
	})

	return c.JSON(http.StatusOK, apimodels.ListModelsResponse{
		Models: availability,
	})
}

func idleOnly(lease models.NodeLease) bool {
	return lease.Status == models.NodeStatusIdle
}
