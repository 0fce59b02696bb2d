package registry

import (
	"context"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// LeaseStore tracks node leases. Leases are owned and refreshed exclusively
// by the node they describe; a lease past its expiry is logically absent
// from reads even before it is physically purged.
type LeaseStore interface {
	// RegisterOrRefresh upserts a lease, resetting its expiry to now plus
	// the store's TTL. Idempotent per node ID.
	RegisterOrRefresh(ctx context.Context, lease models.NodeLease) error

	// Get returns the live lease for the given node ID.
	Get(ctx context.Context, nodeID string) (models.NodeLease, error)

	// List returns all live leases matching every filter.
	List(ctx context.Context, filters ...LeaseFilter) ([]models.NodeLease, error)

	// SetMultiplier records a benchmark-assigned hardware multiplier for the
	// node. The recorded value overrides whatever the node self-reports on
	// subsequent heartbeats.
	SetMultiplier(ctx context.Context, nodeID string, multiplier float64) error

	// Delete removes a lease from the store.
	Delete(ctx context.Context, nodeID string) error
}

// LeaseFilter is a function that filters leases when listing nodes. It
// returns true if the lease should be returned, and false if it should be
// ignored.
type LeaseFilter func(models.NodeLease) bool
