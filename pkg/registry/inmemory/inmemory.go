package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry"
)

type LeaseStoreParams struct {
	// TTL is how long a lease stays live after its last refresh.
	TTL   time.Duration
	Clock clock.Clock
}

// LeaseStore keeps node leases in memory with lazy expiry: expired entries
// are invisible to reads immediately and physically evicted opportunistically.
type LeaseStore struct {
	ttl         time.Duration
	clock       clock.Clock
	leases      map[string]models.NodeLease
	multipliers map[string]float64
	mu          sync.RWMutex
}

func NewLeaseStore(params LeaseStoreParams) *LeaseStore {
	if params.TTL == 0 {
		params.TTL = models.DefaultLeaseTTL
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &LeaseStore{
		ttl:         params.TTL,
		clock:       params.Clock,
		leases:      make(map[string]models.NodeLease),
		multipliers: make(map[string]float64),
	}
}

func (s *LeaseStore) RegisterOrRefresh(ctx context.Context, lease models.NodeLease) error {
	lease.Normalize()
	if err := lease.Validate(); err != nil {
		return models.NewBaseError("invalid node lease: %s", err).
			WithCode(models.BadRequestError).
			WithComponent("LeaseStore")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lease.ExpiresAt = s.clock.Now().Add(s.ttl)
	if assigned, ok := s.multipliers[lease.NodeID]; ok {
		lease.Multiplier = assigned
	}
	s.leases[lease.NodeID] = lease

	log.Ctx(ctx).Trace().
		Str("node_id", lease.NodeID).
		Str("status", string(lease.Status)).
		Time("expires_at", lease.ExpiresAt).
		Msg("node lease refreshed")
	return nil
}

func (s *LeaseStore) Get(ctx context.Context, nodeID string) (models.NodeLease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lease, ok := s.leases[nodeID]
	if !ok {
		return models.NodeLease{}, registry.NewErrNodeNotFound(nodeID)
	}
	if !lease.Live(s.clock.Now()) {
		go s.evict(ctx, nodeID)
		return models.NodeLease{}, registry.NewErrNodeNotFound(nodeID)
	}
	return lease, nil
}

func (s *LeaseStore) List(ctx context.Context, filters ...registry.LeaseFilter) ([]models.NodeLease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	megaFilter := func(lease models.NodeLease) bool {
		for _, filter := range filters {
			if !filter(lease) {
				return false
			}
		}
		return true
	}

	now := s.clock.Now()
	var expired []string
	result := make([]models.NodeLease, 0, len(s.leases))
	for nodeID, lease := range s.leases {
		if !lease.Live(now) {
			expired = append(expired, nodeID)
			continue
		}
		if megaFilter(lease) {
			result = append(result, lease)
		}
	}

	if len(expired) > 0 {
		go s.evict(ctx, expired...)
	}
	return result, nil
}

func (s *LeaseStore) SetMultiplier(ctx context.Context, nodeID string, multiplier float64) error {
	if multiplier < 1.0 {
		return models.NewBaseError("multiplier must be at least 1.0, got %f", multiplier).
			WithCode(models.BadRequestError).
			WithComponent("LeaseStore")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.multipliers[nodeID] = multiplier
	if lease, ok := s.leases[nodeID]; ok {
		lease.Multiplier = multiplier
		s.leases[nodeID] = lease
	}
	return nil
}

func (s *LeaseStore) Delete(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, nodeID)
	delete(s.multipliers, nodeID)
	return nil
}

// evict removes leases that have already passed their expiry. Eviction is
// best-effort; reads treat expired leases as absent either way.
func (s *LeaseStore) evict(ctx context.Context, nodeIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, nodeID := range nodeIDs {
		lease, ok := s.leases[nodeID]
		if !ok || lease.Live(now) {
			// refreshed since we decided to evict
			continue
		}
		delete(s.leases, nodeID)
		log.Ctx(ctx).Debug().Str("node_id", nodeID).Msg("evicted expired node lease")
	}
}

// compile-time interface check
var _ registry.LeaseStore = (*LeaseStore)(nil)
