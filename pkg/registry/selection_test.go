//go:build unit || !integration

package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"github.com/100monkeys-ai/monkey-troop/pkg/logger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry"
	"github.com/100monkeys-ai/monkey-troop/pkg/registry/inmemory"
)

type SelectorSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock.Mock
	store    *inmemory.LeaseStore
	selector *registry.Selector
}

func (s *SelectorSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.store = inmemory.NewLeaseStore(inmemory.LeaseStoreParams{
		TTL:   45 * time.Second,
		Clock: s.clock,
	})
	s.selector = registry.NewSelector(s.store)
}

func TestSelectorSuite(t *testing.T) {
	suite.Run(t, new(SelectorSuite))
}

func (s *SelectorSuite) register(nodeID string, status models.NodeStatus, multiplier float64, native bool) {
	lease := models.NodeLease{
		NodeID:     nodeID,
		Address:    "http://" + nodeID + ":8080",
		Status:     status,
		Models:     []string{"tinyllama-1.1b"},
		Multiplier: multiplier,
	}
	if native {
		lease.Engines = []models.Engine{
			{Type: "llamacpp", Models: []string{"tinyllama-1.1b"}},
		}
	} else {
		lease.Engines = []models.Engine{
			{Type: "llamacpp", Models: []string{"other-model"}},
			{Type: "fallback", Models: []string{"tinyllama-1.1b"}},
		}
	}
	s.Require().NoError(s.store.RegisterOrRefresh(s.ctx, lease))
}

func (s *SelectorSuite) TestNoNodes() {
	_, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().True(models.IsErrorWithCode(err, models.NoNodeAvailable))
}

func (s *SelectorSuite) TestBusyNodesAreExcluded() {
	s.register("node-1", models.NodeStatusBusy, 2.0, true)
	_, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().True(models.IsErrorWithCode(err, models.NoNodeAvailable))
}

func (s *SelectorSuite) TestUnknownModel() {
	s.register("node-1", models.NodeStatusIdle, 2.0, true)
	_, err := s.selector.Select(s.ctx, "some-other-model")
	s.Require().True(models.IsErrorWithCode(err, models.NoNodeAvailable))
}

func (s *SelectorSuite) TestPrefersNativeEngine() {
	s.register("fallback-node", models.NodeStatusIdle, 10.0, false)
	s.register("native-node", models.NodeStatusIdle, 1.0, true)

	lease, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().NoError(err)
	s.Require().Equal("native-node", lease.NodeID,
		"a native node wins even against a faster fallback node")
}

func (s *SelectorSuite) TestPrefersHighestMultiplier() {
	s.register("slow-node", models.NodeStatusIdle, 1.0, true)
	s.register("fast-node", models.NodeStatusIdle, 8.0, true)

	lease, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().NoError(err)
	s.Require().Equal("fast-node", lease.NodeID)
}

func (s *SelectorSuite) TestFallsBackWhenNoNativeNode() {
	s.register("fallback-node", models.NodeStatusIdle, 1.0, false)

	lease, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().NoError(err)
	s.Require().Equal("fallback-node", lease.NodeID)
}

func (s *SelectorSuite) TestExpiredNodesAreExcluded() {
	s.register("node-1", models.NodeStatusIdle, 2.0, true)
	s.clock.Add(time.Minute)

	_, err := s.selector.Select(s.ctx, "tinyllama-1.1b")
	s.Require().True(models.IsErrorWithCode(err, models.NoNodeAvailable))
}
