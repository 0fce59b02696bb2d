//go:build unit || !integration

package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
)

type LimiterSuite struct {
	suite.Suite
	clock   *clock.Mock
	limiter *Limiter
}

func (s *LimiterSuite) SetupTest() {
	s.clock = clock.NewMock()
	// align the mock clock to a window boundary
	s.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.limiter = NewLimiter(s.clock)
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) TestAllowsUpToLimit() {
	for i := 0; i < 5; i++ {
		result := s.limiter.Check("1.2.3.4", 5, time.Hour)
		s.Require().True(result.Allowed, "request %d should be allowed", i+1)
		s.Require().Equal(5-i-1, result.Remaining)
	}

	result := s.limiter.Check("1.2.3.4", 5, time.Hour)
	s.Require().False(result.Allowed)
	s.Require().Equal(time.Hour, result.RetryAfter)
}

func (s *LimiterSuite) TestDeniedChecksAreNotCounted() {
	for i := 0; i < 10; i++ {
		s.limiter.Check("1.2.3.4", 5, time.Hour)
	}

	// half way through the next window the carryover is the five allowed
	// requests at half weight, not the ten attempts. Had the denials been
	// counted the carryover would still exhaust the limit.
	s.clock.Add(90 * time.Minute)
	result := s.limiter.Check("1.2.3.4", 5, time.Hour)
	s.Require().True(result.Allowed)
	s.Require().Equal(2, result.Remaining)
}

func (s *LimiterSuite) TestWindowBoundaryDoesNotDoubleRate() {
	for i := 0; i < 5; i++ {
		s.Require().True(s.limiter.Check("1.2.3.4", 5, time.Hour).Allowed)
	}

	// just past the boundary the previous window still carries nearly full
	// weight, so only one slot has opened up and a burst is rejected
	s.clock.Add(61 * time.Minute)
	result := s.limiter.Check("1.2.3.4", 5, time.Hour)
	s.Require().True(result.Allowed)
	s.Require().Equal(0, result.Remaining)

	result = s.limiter.Check("1.2.3.4", 5, time.Hour)
	s.Require().False(result.Allowed)
	s.Require().Equal(59*time.Minute, result.RetryAfter)
}

func (s *LimiterSuite) TestCarryoverDecays() {
	for i := 0; i < 5; i++ {
		s.Require().True(s.limiter.Check("1.2.3.4", 5, time.Hour).Allowed)
	}

	// 48 minutes into the next window the carryover is 5*0.2 = 1
	s.clock.Add(time.Hour + 48*time.Minute)
	for i := 0; i < 4; i++ {
		s.Require().True(s.limiter.Check("1.2.3.4", 5, time.Hour).Allowed, "request %d", i+1)
	}
	s.Require().False(s.limiter.Check("1.2.3.4", 5, time.Hour).Allowed)
}

func (s *LimiterSuite) TestStaleWindowsReset() {
	for i := 0; i < 5; i++ {
		s.limiter.Check("1.2.3.4", 5, time.Hour)
	}

	// two full windows later nothing carries over
	s.clock.Add(2 * time.Hour)
	result := s.limiter.Check("1.2.3.4", 5, time.Hour)
	s.Require().True(result.Allowed)
	s.Require().Equal(4, result.Remaining)
}

func (s *LimiterSuite) TestKeysAreIndependent() {
	for i := 0; i < 5; i++ {
		s.limiter.Check("1.2.3.4", 5, time.Hour)
	}
	s.Require().False(s.limiter.Check("1.2.3.4", 5, time.Hour).Allowed)
	s.Require().True(s.limiter.Check("5.6.7.8", 5, time.Hour).Allowed)
}
