package sync

import (
	gosync "sync"

	"go.uber.org/atomic"
)

// Guard lets one call run at a time. Concurrent callers wait their turn;
// none is dropped.
type Guard struct {
	mu       gosync.Mutex
	inFlight atomic.Bool
	runs     atomic.Int64
}

// NewGuard creates an idle Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Do runs fn once every earlier call has returned.
func (g *Guard) Do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.inFlight.Store(true)
	defer g.inFlight.Store(false)

	g.runs.Inc()
	return fn()
}

// InFlight reports whether a call is running.
func (g *Guard) InFlight() bool {
	return g.inFlight.Load()
}

// Runs returns the number of calls started so far.
func (g *Guard) Runs() int64 {
	return g.runs.Load()
}
