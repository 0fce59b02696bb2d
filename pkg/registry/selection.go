package registry

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// Selector picks the best live candidate node for a model. Selection reads
// are lock-free snapshots tolerant of races: a chosen node may transition
// to busy moments later, which is accepted as best-effort selection rather
// than a hard reservation of node capacity.
type Selector struct {
	store LeaseStore
}

func NewSelector(store LeaseStore) *Selector {
	return &Selector{store: store}
}

// Select returns the best live idle node advertising the model. Candidates
// whose highest-priority engine serves the model natively win over ones
// that would fall back; ties prefer the highest hardware multiplier, then
// the soonest-expiring lease. Returns a NoNodeAvailable error when the
// candidate set is empty, which is a normal condition and not retryable.
func (s *Selector) Select(ctx context.Context, model string) (models.NodeLease, error) {
	candidates, err := s.store.List(ctx,
		func(lease models.NodeLease) bool { return lease.Status == models.NodeStatusIdle },
		func(lease models.NodeLease) bool { return lease.HasModel(model) },
	)
	if err != nil {
		return models.NodeLease{}, err
	}
	if len(candidates) == 0 {
		return models.NodeLease{}, NewErrNoNodeAvailable(model)
	}

	native := lo.Filter(candidates, func(lease models.NodeLease, _ int) bool {
		return lease.ServesNatively(model)
	})
	if len(native) > 0 {
		candidates = native
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Multiplier != candidates[j].Multiplier {
			return candidates[i].Multiplier > candidates[j].Multiplier
		}
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})
	return candidates[0], nil
}

// NewErrNoNodeAvailable reports that no live idle node advertises the model.
func NewErrNoNodeAvailable(model string) *models.BaseError {
	return models.NewBaseError("no idle nodes found for model: %s", model).
		WithCode(models.NoNodeAvailable).
		WithComponent("NodeRegistry").
		WithHint("nodes may join or free up; try again later")
}
