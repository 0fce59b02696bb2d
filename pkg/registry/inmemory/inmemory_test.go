//go:build unit || !integration

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"github.com/100monkeys-ai/monkey-troop/pkg/logger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

type LeaseStoreSuite struct {
	suite.Suite
	ctx   context.Context
	clock *clock.Mock
	store *LeaseStore
}

func (s *LeaseStoreSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.store = NewLeaseStore(LeaseStoreParams{
		TTL:   45 * time.Second,
		Clock: s.clock,
	})
}

func TestLeaseStoreSuite(t *testing.T) {
	suite.Run(t, new(LeaseStoreSuite))
}

func (s *LeaseStoreSuite) lease(nodeID string) models.NodeLease {
	return models.NodeLease{
		NodeID:  nodeID,
		Address: "http://" + nodeID + ":8080",
		Status:  models.NodeStatusIdle,
		Models:  []string{"tinyllama-1.1b"},
	}
}

func (s *LeaseStoreSuite) TestRegisterAndGet() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))

	lease, err := s.store.Get(s.ctx, "node-1")
	s.Require().NoError(err)
	s.Require().Equal("node-1", lease.NodeID)
	s.Require().Equal(1.0, lease.Multiplier)
	s.Require().Equal(s.clock.Now().Add(45*time.Second), lease.ExpiresAt)
}

func (s *LeaseStoreSuite) TestGetUnknownNode() {
	_, err := s.store.Get(s.ctx, "nope")
	s.Require().Error(err)
}

func (s *LeaseStoreSuite) TestRejectsInvalidLease() {
	err := s.store.RegisterOrRefresh(s.ctx, models.NodeLease{NodeID: "node-1"})
	s.Require().True(models.IsErrorWithCode(err, models.BadRequestError))
}

func (s *LeaseStoreSuite) TestRefreshExtendsExpiry() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))
	s.clock.Add(30 * time.Second)
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))

	s.clock.Add(30 * time.Second)
	_, err := s.store.Get(s.ctx, "node-1")
	s.Require().NoError(err, "refreshed lease should outlive the original TTL")
}

func (s *LeaseStoreSuite) TestExpiredLeaseIsAbsent() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))
	s.clock.Add(45 * time.Second)

	_, err := s.store.Get(s.ctx, "node-1")
	s.Require().Error(err)

	leases, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Empty(leases)
}

func (s *LeaseStoreSuite) TestExpiredNodeReturnsOnNextHeartbeat() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))
	s.clock.Add(time.Minute)
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))

	_, err := s.store.Get(s.ctx, "node-1")
	s.Require().NoError(err)
}

func (s *LeaseStoreSuite) TestListFilters() {
	busy := s.lease("node-1")
	busy.Status = models.NodeStatusBusy
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, busy))
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-2")))

	idle, err := s.store.List(s.ctx, func(lease models.NodeLease) bool {
		return lease.Status == models.NodeStatusIdle
	})
	s.Require().NoError(err)
	s.Require().Len(idle, 1)
	s.Require().Equal("node-2", idle[0].NodeID)
}

func (s *LeaseStoreSuite) TestMultiplierOverlaySurvivesHeartbeats() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))
	s.Require().NoError(s.store.SetMultiplier(s.ctx, "node-1", 3.5))

	lease, err := s.store.Get(s.ctx, "node-1")
	s.Require().NoError(err)
	s.Require().Equal(3.5, lease.Multiplier)

	// the node's own heartbeat cannot overwrite the assigned multiplier
	selfReported := s.lease("node-1")
	selfReported.Multiplier = 20.0
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, selfReported))

	lease, err = s.store.Get(s.ctx, "node-1")
	s.Require().NoError(err)
	s.Require().Equal(3.5, lease.Multiplier)
}

func (s *LeaseStoreSuite) TestSetMultiplierRejectsBelowOne() {
	err := s.store.SetMultiplier(s.ctx, "node-1", 0.5)
	s.Require().True(models.IsErrorWithCode(err, models.BadRequestError))
}

func (s *LeaseStoreSuite) TestDelete() {
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, s.lease("node-1")))
	s.Require().NoError(s.store.Delete(s.ctx, "node-1"))

	_, err := s.store.Get(s.ctx, "node-1")
	s.Require().Error(err)
}
