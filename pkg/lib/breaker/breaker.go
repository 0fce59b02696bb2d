package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateStrings = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	return stateStrings[s]
}

// StateChangeHandler is notified whenever a breaker transitions between states.
type StateChangeHandler func(target string, from, to State)

type Params struct {
	// Target identifies the remote the breaker guards, used in errors and logs.
	Target string

	// FailureThreshold is the number of consecutive failures that trip the
	// breaker from closed to open.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before allowing a single
	// half-open trial call.
	Cooldown time.Duration

	// Clock is the time source; defaults to the real clock.
	Clock clock.Clock

	// OnStateChange is invoked outside the breaker's lock on transitions.
	OnStateChange StateChangeHandler
}

// CircuitBreaker is a failure-isolating state machine guarding a single
// remote target. While open, calls fail fast without invoking the
// underlying operation. After the cooldown, exactly one trial call is let
// through; concurrent callers during half-open fail fast with CircuitOpen
// rather than waiting, so behavior under contention is deterministic.
type CircuitBreaker struct {
	target           string
	failureThreshold int
	cooldown         time.Duration
	clock            clock.Clock
	onStateChange    StateChangeHandler

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

func New(params Params) *CircuitBreaker {
	if params.FailureThreshold <= 0 {
		params.FailureThreshold = models.BreakerThreshold
	}
	if params.Cooldown <= 0 {
		params.Cooldown = models.BreakerCooldown
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &CircuitBreaker{
		target:           params.Target,
		failureThreshold: params.FailureThreshold,
		cooldown:         params.Cooldown,
		clock:            params.Clock,
		onStateChange:    params.OnStateChange,
		state:            StateClosed,
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker. If the breaker is open and the
// cooldown has not elapsed, op is never invoked and a CircuitOpen error is
// returned.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := op(ctx)
	if err != nil && models.IsRetryable(err) {
		b.recordFailure()
	} else if err == nil {
		b.recordSuccess()
	} else {
		// Terminal business outcomes say nothing about the health of the
		// target, so they neither trip nor reset the breaker, but they do
		// release a half-open trial slot.
		b.releaseTrial()
	}
	return err
}

func (b *CircuitBreaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock.Since(b.openedAt) < b.cooldown {
			return b.openError()
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return b.openError()
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case StateHalfOpen:
		// the trial call failed, cooldown restarts
		b.openedAt = b.clock.Now()
		b.transition(StateOpen)
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.openedAt = b.clock.Now()
			b.transition(StateOpen)
		}
	case StateOpen:
	}
}

func (b *CircuitBreaker) releaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// transition must be called with the lock held.
func (b *CircuitBreaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.consecutiveFailures = 0
	}
	log.Debug().
		Str("target", b.target).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")
	if b.onStateChange != nil {
		go b.onStateChange(b.target, from, to)
	}
}

func (b *CircuitBreaker) openError() *models.BaseError {
	return models.NewBaseError("circuit open for target %s", b.target).
		WithCode(models.CircuitOpen).
		WithComponent("CircuitBreaker").
		WithHint("the target has been failing; try again after the cooldown")
}
