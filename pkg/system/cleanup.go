package system

import (
	"context"
	"errors"
	"time"

	realsync "sync"

	sync "github.com/bacalhau-project/golang-mutex-tracer"

	"github.com/rs/zerolog/log"
)

// CleanupManager collects teardown functions from the components the serve
// command wires up (ledger close, HTTP server shutdown) and runs them when
// the coordinator exits. Callbacks run concurrently; Cleanup blocks until
// the slowest one returns.
type CleanupManager struct {
	wg realsync.WaitGroup

	fnsMutex sync.Mutex
	fns      []func() error
	fnsDone  bool
}

func NewCleanupManager() *CleanupManager {
	c := &CleanupManager{}
	c.fnsMutex.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "CleanupManager.fnsMutex",
	})
	return c
}

// RegisterCallback adds a teardown function. Registration after Cleanup has
// run is a wiring bug and is logged rather than honored.
func (cm *CleanupManager) RegisterCallback(fn func() error) {
	cm.fnsMutex.Lock()
	defer cm.fnsMutex.Unlock()

	if cm.fnsDone {
		log.Error().Msg("cleanup callback registered after teardown already ran")
		return
	}

	cm.wg.Add(1)
	cm.fns = append(cm.fns, fn)
}

// Cleanup runs every registered teardown function and waits for all of them
// to finish. Safe to call once; later calls are no-ops.
func (cm *CleanupManager) Cleanup() {
	cm.fnsMutex.Lock()
	defer cm.fnsMutex.Unlock()

	if cm.fnsDone {
		log.Warn().Msg("coordinator teardown already ran")
		return
	}

	for i := 0; i < len(cm.fns); i++ {
		go func(fn func() error) {
			defer cm.wg.Done()

			if err := fn(); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("teardown callback failed")
				}
			}
		}(cm.fns[i])
	}

	cm.wg.Wait()
	cm.fnsDone = true
}
