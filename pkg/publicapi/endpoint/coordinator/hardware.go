package coordinator

import (
	"math"
	"net/http"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/apimodels"
)

// The benchmark is a fixed reference workload. The multiplier divides the
// reference baseline by the node's measured duration, so a node twice as
// fast as the baseline earns twice the credit per second of work.
const (
	benchmarkBaselineSeconds = 35.0
	benchmarkMaxMultiplier   = 20.0
	benchmarkModel           = "tinyllama-1.1b"
	benchmarkPrompt          = "Write a limerick about a troop of one hundred monkeys sharing a single typewriter."
	challengeTTL             = 5 * time.Minute

	// hex SHA-256 of the benchmark output
	proofHashLength = 64
)

type challenge struct {
	nodeID    string
	expiresAt time.Time
}

type challengeStore struct {
	clock clock.Clock

	mu     sync.Mutex
	nonces map[string]challenge
}

func newChallengeStore(clk clock.Clock) *challengeStore {
	return &challengeStore{
		clock:  clk,
		nonces: make(map[string]challenge),
	}
}

func (s *challengeStore) issue(nodeID string) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for nonce, ch := range s.nonces {
		if now.After(ch.expiresAt) {
			delete(s.nonces, nonce)
		}
	}

	nonce := uuid.NewString()
	expiresAt := now.Add(challengeTTL)
	s.nonces[nonce] = challenge{nodeID: nodeID, expiresAt: expiresAt}
	return nonce, expiresAt
}

// take consumes the nonce. A nonce is single use whether or not it
// verifies.
func (s *challengeStore) take(nonce, nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.nonces[nonce]
	if !ok {
		return false
	}
	delete(s.nonces, nonce)
	return ch.nodeID == nodeID && s.clock.Now().Before(ch.expiresAt)
}

func (e *Endpoint) hardwareChallenge(c echo.Context) error {
	var request apimodels.HardwareChallengeRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if request.NodeID == "" {
		return models.NewBaseError("hardware challenge requires NodeID").
			WithCode(models.BadRequestError).
			WithComponent("APIServer")
	}

	nonce, expiresAt := e.challenges.issue(request.NodeID)
	return c.JSON(http.StatusOK, apimodels.HardwareChallengeResponse{
		Nonce:     nonce,
		Model:     benchmarkModel,
		Prompt:    benchmarkPrompt,
		ExpiresAt: expiresAt,
	})
}

func (e *Endpoint) hardwareVerify(c echo.Context) error {
	ctx := c.Request().Context()

	var request apimodels.HardwareVerifyRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if request.NodeID == "" || request.Nonce == "" || request.DurationSeconds <= 0 {
		return models.NewBaseError("hardware verify requires NodeID, Nonce and a positive DurationSeconds").
			WithCode(models.BadRequestError).
			WithComponent("APIServer")
	}
	if len(request.ProofHash) != proofHashLength {
		return models.NewBaseError("proof hash must be a %d-character hex digest", proofHashLength).
			WithCode(models.BadRequestError).
			WithComponent("APIServer").
			WithHint("send the hex SHA-256 of the benchmark output")
	}

	if !e.challenges.take(request.Nonce, request.NodeID) {
		return models.NewBaseError("unknown or expired hardware challenge").
			WithCode(models.NotFoundError).
			WithComponent("APIServer").
			WithHint("request a fresh challenge and run the benchmark within its expiry")
	}

	multiplier := benchmarkBaselineSeconds / request.DurationSeconds
	if multiplier > benchmarkMaxMultiplier {
		multiplier = benchmarkMaxMultiplier
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	multiplier = math.Round(multiplier*100) / 100

	if err := e.store.SetMultiplier(ctx, request.NodeID, multiplier); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, apimodels.HardwareVerifyResponse{
		NodeID:     request.NodeID,
		Multiplier: multiplier,
		Tier:       multiplierTier(multiplier),
	})
}

func multiplierTier(multiplier float64) string {
	switch {
	case multiplier >= 8.0:
		return "high"
	case multiplier >= 2.0:
		return "standard"
	default:
		return "basic"
	}
}
