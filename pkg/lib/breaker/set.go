package breaker

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Set lazily creates and holds one CircuitBreaker per target identifier so
// that failures against one remote never trip calls to another.
type Set struct {
	failureThreshold int
	cooldown         time.Duration
	clock            clock.Clock
	onStateChange    StateChangeHandler

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

type SetParams struct {
	FailureThreshold int
	Cooldown         time.Duration
	Clock            clock.Clock
	OnStateChange    StateChangeHandler
}

func NewSet(params SetParams) *Set {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Set{
		failureThreshold: params.FailureThreshold,
		cooldown:         params.Cooldown,
		clock:            params.Clock,
		onStateChange:    params.OnStateChange,
		breakers:         make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for the given target, creating it on first use.
func (s *Set) Get(target string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[target]
	if !ok {
		b = New(Params{
			Target:           target,
			FailureThreshold: s.failureThreshold,
			Cooldown:         s.cooldown,
			Clock:            s.clock,
			OnStateChange:    s.onStateChange,
		})
		s.breakers[target] = b
	}
	return b
}
