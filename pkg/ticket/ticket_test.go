//go:build unit || !integration

package ticket

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"github.com/100monkeys-ai/monkey-troop/pkg/logger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

type TicketSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *clock.Mock
	signer    *Signer
	authority *Authority
}

func (s *TicketSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	signer, err := LoadOrGenerateSigner(s.T().TempDir())
	s.Require().NoError(err)
	s.signer = signer
	s.authority = NewAuthority(AuthorityParams{
		Signer: signer,
		Clock:  s.clock,
	})
}

func TestTicketSuite(t *testing.T) {
	suite.Run(t, new(TicketSuite))
}

func (s *TicketSuite) verifier(nodeID string) *Verifier {
	publicKey, err := ParsePublicKeyPEM(s.signer.PublicKeyPEM())
	s.Require().NoError(err)
	return NewVerifier(VerifierParams{
		PublicKey: publicKey,
		NodeID:    nodeID,
		Clock:     s.clock,
	})
}

func (s *TicketSuite) TestIssueAndVerify() {
	serialized, jobID, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)
	s.Require().NotEmpty(jobID)

	claims, err := s.verifier("node-1").Verify(serialized)
	s.Require().NoError(err)
	s.Require().Equal(jobID, claims.JobID())
	s.Require().Equal("alice", claims.Subject)
	s.Require().Equal("node-1", claims.NodeID)
	s.Require().Equal("tinyllama-1.1b", claims.Model)
	s.Require().Equal(models.TicketTTL,
		claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time))
}

func (s *TicketSuite) TestFreshJobIDPerTicket() {
	_, first, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)
	_, second, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)
	s.Require().NotEqual(first, second)
}

func (s *TicketSuite) TestTamperedTicketIsRejected() {
	serialized, _, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	// flip one character in the claims segment
	parts := strings.Split(serialized, ".")
	s.Require().Len(parts, 3)
	payload := []byte(parts[1])
	if payload[10] == 'A' {
		payload[10] = 'B'
	} else {
		payload[10] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = s.verifier("node-1").Verify(tampered)
	s.Require().Error(err)
}

func (s *TicketSuite) TestExpiredTicketIsRejected() {
	serialized, _, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	s.clock.Add(models.TicketTTL + models.TicketClockSkew + time.Second)
	_, err = s.verifier("node-1").Verify(serialized)
	s.Require().True(models.IsErrorWithCode(err, models.TicketExpired))
}

func (s *TicketSuite) TestClockSkewIsTolerated() {
	serialized, _, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	s.clock.Add(models.TicketTTL + models.TicketClockSkew - time.Second)
	_, err = s.verifier("node-1").Verify(serialized)
	s.Require().NoError(err)
}

func (s *TicketSuite) TestTicketForAnotherNodeIsRejected() {
	serialized, _, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	_, err = s.verifier("node-2").Verify(serialized)
	s.Require().True(models.IsErrorWithCode(err, models.WrongAudience))
}

func (s *TicketSuite) TestMalformedTicketIsRejected() {
	_, err := s.verifier("node-1").Verify("not-a-ticket")
	s.Require().True(models.IsErrorWithCode(err, models.MalformedTicket))
}

func (s *TicketSuite) TestForeignKeyIsRejected() {
	serialized, _, err := s.authority.Issue(s.ctx, "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	otherSigner, err := LoadOrGenerateSigner(s.T().TempDir())
	s.Require().NoError(err)
	otherKey, err := ParsePublicKeyPEM(otherSigner.PublicKeyPEM())
	s.Require().NoError(err)

	verifier := NewVerifier(VerifierParams{
		PublicKey: otherKey,
		NodeID:    "node-1",
		Clock:     s.clock,
	})
	_, err = verifier.Verify(serialized)
	s.Require().True(models.IsErrorWithCode(err, models.SignatureInvalid))
}

func (s *TicketSuite) TestKeypairSurvivesRestart() {
	dir := s.T().TempDir()
	first, err := LoadOrGenerateSigner(dir)
	s.Require().NoError(err)
	second, err := LoadOrGenerateSigner(dir)
	s.Require().NoError(err)

	s.Require().Equal(first.KeyID(), second.KeyID())
	s.Require().Equal(first.PublicKeyPEM(), second.PublicKeyPEM())
}
