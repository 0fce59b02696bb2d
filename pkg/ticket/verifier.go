package ticket

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

type VerifierParams struct {
	// PublicKey is the coordinator's signing public key, fetched once at
	// node startup and cached for the process lifetime.
	PublicKey *rsa.PublicKey

	// NodeID is the identity of the verifying node. Capabilities minted for
	// any other node are rejected.
	NodeID string

	// ClockSkew bounds the tolerated disagreement between the coordinator's
	// clock and ours.
	ClockSkew time.Duration

	Clock clock.Clock
}

// Verifier validates capability tickets offline on the node side. It never
// calls back to the coordinator and never re-signs anything.
type Verifier struct {
	publicKey *rsa.PublicKey
	nodeID    string
	skew      time.Duration
	clock     clock.Clock
}

func NewVerifier(params VerifierParams) *Verifier {
	if params.ClockSkew == 0 {
		params.ClockSkew = models.TicketClockSkew
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Verifier{
		publicKey: params.PublicKey,
		nodeID:    params.NodeID,
		skew:      params.ClockSkew,
		clock:     params.Clock,
	}
}

// NewVerifierFromPEM builds a Verifier from the PEM text served by the
// coordinator's public-key endpoint.
func NewVerifierFromPEM(pemText, nodeID string) (*Verifier, error) {
	publicKey, err := ParsePublicKeyPEM(pemText)
	if err != nil {
		return nil, err
	}
	return NewVerifier(VerifierParams{PublicKey: publicKey, NodeID: nodeID}), nil
}

// Verify checks the ticket's signature, audience, issuance and expiry
// against this node's identity and returns the validated claim set. Every
// failure is terminal: a rejected ticket must never be retried.
func (v *Verifier) Verify(serialized string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(serialized, claims,
		func(token *jwt.Token) (interface{}, error) {
			return v.publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(models.TicketAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(func() time.Time { return v.clock.Now() }),
	)
	if err != nil {
		return nil, translateJWTError(err)
	}

	if claims.NodeID != v.nodeID {
		return nil, models.NewBaseError("capability issued for node %s, not %s", claims.NodeID, v.nodeID).
			WithCode(models.WrongAudience).
			WithComponent("TicketVerifier")
	}
	return claims, nil
}

func translateJWTError(err error) *models.BaseError {
	verifyErr := models.NewBaseError("capability verification failed: %s", err).
		WithComponent("TicketVerifier")

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return verifyErr.WithCode(models.TicketExpired)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return verifyErr.WithCode(models.TicketExpired)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return verifyErr.WithCode(models.WrongAudience)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return verifyErr.WithCode(models.MalformedTicket)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return verifyErr.WithCode(models.SignatureInvalid)
	default:
		return verifyErr.WithCode(models.SignatureInvalid)
	}
}
