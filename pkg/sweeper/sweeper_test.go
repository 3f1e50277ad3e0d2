package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-conveyor/conveyor/pkg/api"
)

// cleanupBackend counts Cleanup calls and can fail the first few.
type cleanupBackend struct {
	api.Backend

	calls    atomic.Int64
	failures atomic.Int64
}

func (c *cleanupBackend) Cleanup(ctx context.Context) error {
	n := c.calls.Add(1)
	if n <= c.failures.Load() {
		return errors.New("backend unavailable")
	}
	return nil
}

func TestSweepOnce(t *testing.T) {
	backend := &cleanupBackend{}
	s := New(backend, Options{})

	require.NoError(t, s.Sweep(context.Background()))
	require.EqualValues(t, 1, backend.calls.Load())
}

func TestSweepRetriesTransientFailures(t *testing.T) {
	backend := &cleanupBackend{}
	backend.failures.Store(2)

	s := New(backend, Options{MaxRetryElapsed: 5 * time.Second})

	require.NoError(t, s.Sweep(context.Background()))
	require.GreaterOrEqual(t, backend.calls.Load(), int64(3))
}

func TestSweepGivesUpEventually(t *testing.T) {
	backend := &cleanupBackend{}
	backend.failures.Store(1 << 30)

	s := New(backend, Options{MaxRetryElapsed: 50 * time.Millisecond})

	err := s.Sweep(context.Background())
	require.Error(t, err)
}

func TestSweeperLoop(t *testing.T) {
	backend := &cleanupBackend{}
	s := New(backend, Options{Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	// Starting twice is a no-op.
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return backend.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	// Stopping twice is a no-op.
	s.Stop()

	after := backend.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, backend.calls.Load())
}

func TestSweeperStopBeforeStart(t *testing.T) {
	s := New(&cleanupBackend{}, Options{})
	s.Stop()
}

func TestSweeperCancelledContext(t *testing.T) {
	backend := &cleanupBackend{}
	backend.failures.Store(1 << 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(backend, Options{MaxRetryElapsed: time.Minute})
	err := s.Sweep(ctx)
	require.Error(t, err)
	// The retry loop respects cancellation instead of burning the full
	// retry window.
	require.LessOrEqual(t, backend.calls.Load(), int64(2))
}
