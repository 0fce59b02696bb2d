package models

import "time"

const (
	// TicketAudience is the fixed audience claim carried by every capability
	// ticket. Worker-side verifiers reject tickets minted for anything else.
	TicketAudience = "troop-worker"

	// TicketTTL is how long an issued capability ticket stays valid.
	TicketTTL = 5 * time.Minute

	// TicketClockSkew bounds the tolerance for clocks that disagree between
	// the coordinator and a verifying worker.
	TicketClockSkew = 5 * time.Second
)

const (
	// StarterGrantSeconds is the one-time credit applied to a fresh account:
	// one hour of compute time.
	StarterGrantSeconds = 3600

	// DefaultReservationTTL bounds how long held-but-unsettled funds stay
	// locked before the expiry sweep refunds them.
	DefaultReservationTTL = 15 * time.Minute

	// DefaultSweepInterval is how often the ledger looks for expired
	// reservations.
	DefaultSweepInterval = time.Minute
)

const (
	// DefaultLeaseTTL is how long a node lease stays live without a
	// refreshing heartbeat. Workers heartbeat well inside this window.
	DefaultLeaseTTL = 45 * time.Second
)

// Timeout tiers for outbound network operations. A call that exceeds its
// tier is treated as a transient failure for retry and circuit breaker
// accounting.
const (
	DiscoveryTimeout = 5 * time.Second
	AuthTimeout      = 30 * time.Second
	InferenceTimeout = 300 * time.Second
)

// Retry and circuit breaker defaults shared by every cross-component call.
const (
	MaxRetryAttempts = 3
	BaseRetryDelay   = 1 * time.Second
	MaxRetryDelay    = 4 * time.Second
	BreakerThreshold = 5
	BreakerCooldown  = 60 * time.Second
)

// Rate limit tiers. Discovery-class operations are keyed by caller IP,
// capability-issuing operations by requester identity.
const (
	DiscoveryRateLimit = 100
	IssueRateLimit     = 20
	RateLimitWindow    = time.Hour
)
