package sync

import (
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestGuard_ConcurrentCallsRunSequentially(t *testing.T) {
	g := NewGuard()

	const callers = 8
	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		done    atomic.Int32
		wg      gosync.WaitGroup
	)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := g.Do(func() error {
				n := active.Inc()
				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Dec()
				done.Inc()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(callers), done.Load())
	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, int64(callers), g.Runs())
	assert.False(t, g.InFlight())
}

func TestGuard_ReturnsError(t *testing.T) {
	g := NewGuard()
	boom := errors.New("boom")

	err := g.Do(func() error {
		assert.True(t, g.InFlight())
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, g.InFlight())
}
