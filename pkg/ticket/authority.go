package ticket

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// Claims is the claim set carried by a capability ticket: a short-lived
// signed assertion that one subject may run one job against one node. The
// signature is produced once at issuance over the exact serialized claim
// set; any mutation invalidates it.
type Claims struct {
	jwt.RegisteredClaims
	NodeID string `json:"node_id"`
	Model  string `json:"model"`
}

// JobID returns the job this capability is scoped to.
func (c *Claims) JobID() string {
	return c.ID
}

type AuthorityParams struct {
	Signer *Signer
	TTL    time.Duration
	Clock  clock.Clock
}

// Authority issues signed capability tickets. Callers are expected to have
// obtained a reservation and passed the issue-tier rate limiter before
// asking for a ticket.
type Authority struct {
	signer *Signer
	ttl    time.Duration
	clock  clock.Clock
}

func NewAuthority(params AuthorityParams) *Authority {
	if params.TTL == 0 {
		params.TTL = models.TicketTTL
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Authority{
		signer: params.Signer,
		ttl:    params.TTL,
		clock:  params.Clock,
	}
}

// TTL returns the lifetime of tickets this authority issues.
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue mints a capability for subject against nodeID with a fresh job ID.
// Returns the serialized ticket and the raw job ID.
func (a *Authority) Issue(ctx context.Context, subject, nodeID, model string) (string, string, error) {
	jobID := uuid.NewString()
	now := a.clock.Now()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jobID,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{models.TicketAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		NodeID: nodeID,
		Model:  model,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = a.signer.kid

	serialized, err := token.SignedString(a.signer.privateKey)
	if err != nil {
		return "", "", models.NewBaseError("signing capability ticket: %s", err).
			WithCode(models.InternalError).
			WithComponent("TicketAuthority")
	}

	log.Ctx(ctx).Debug().
		Str("subject", subject).
		Str("node_id", nodeID).
		Str("job_id", jobID).
		Msg("issued capability ticket")
	return serialized, jobID, nil
}
