//go:build unit || !integration

package nodegate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"github.com/100monkeys-ai/monkey-troop/pkg/logger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/ticket"
)

type NodeGateSuite struct {
	suite.Suite
	clock     *clock.Mock
	authority *ticket.Authority
	verifier  *ticket.Verifier
}

func (s *NodeGateSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	signer, err := ticket.LoadOrGenerateSigner(s.T().TempDir())
	s.Require().NoError(err)
	s.authority = ticket.NewAuthority(ticket.AuthorityParams{Signer: signer, Clock: s.clock})

	publicKey, err := ticket.ParsePublicKeyPEM(signer.PublicKeyPEM())
	s.Require().NoError(err)
	s.verifier = ticket.NewVerifier(ticket.VerifierParams{
		PublicKey: publicKey,
		NodeID:    "node-1",
		Clock:     s.clock,
	})
}

func TestNodeGateSuite(t *testing.T) {
	suite.Run(t, new(NodeGateSuite))
}

// invoke runs a request through the gate and returns the error from the
// middleware chain along with the claims the handler observed.
func (s *NodeGateSuite) invoke(authorization string) (*ticket.Claims, error) {
	router := echo.New()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/inference", nil)
	if authorization != "" {
		request.Header.Set(echo.HeaderAuthorization, authorization)
	}
	recorder := httptest.NewRecorder()
	c := router.NewContext(request, recorder)

	var observed *ticket.Claims
	handler := RequireTicket(s.verifier)(func(c echo.Context) error {
		observed = ClaimsFromContext(c)
		return c.NoContent(http.StatusOK)
	})
	return observed, handler(c)
}

func (s *NodeGateSuite) TestValidTicketPasses() {
	serialized, jobID, err := s.authority.Issue(context.Background(), "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	claims, err := s.invoke("Bearer " + serialized)
	s.Require().NoError(err)
	s.Require().NotNil(claims)
	s.Require().Equal(jobID, claims.JobID())
	s.Require().Equal("alice", claims.Subject)
}

func (s *NodeGateSuite) TestMissingTicketIsRejected() {
	_, err := s.invoke("")
	s.Require().True(models.IsErrorWithCode(err, models.MalformedTicket))
}

func (s *NodeGateSuite) TestNonBearerAuthorizationIsRejected() {
	_, err := s.invoke("Basic dXNlcjpwYXNz")
	s.Require().True(models.IsErrorWithCode(err, models.MalformedTicket))
}

func (s *NodeGateSuite) TestTicketForAnotherNodeIsRejected() {
	serialized, _, err := s.authority.Issue(context.Background(), "alice", "node-2", "tinyllama-1.1b")
	s.Require().NoError(err)

	claims, err := s.invoke("Bearer " + serialized)
	s.Require().True(models.IsErrorWithCode(err, models.WrongAudience))
	s.Require().Nil(claims)
}

func (s *NodeGateSuite) TestExpiredTicketIsRejected() {
	serialized, _, err := s.authority.Issue(context.Background(), "alice", "node-1", "tinyllama-1.1b")
	s.Require().NoError(err)

	s.clock.Add(models.TicketTTL + models.TicketClockSkew + time.Second)
	_, err = s.invoke("Bearer " + serialized)
	s.Require().True(models.IsErrorWithCode(err, models.TicketExpired))
}
