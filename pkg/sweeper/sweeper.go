// Package sweeper runs periodic expiry cleanup against a result backend.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-conveyor/conveyor/pkg/api"
)

// DefaultInterval is the pause between cleanup passes.
const DefaultInterval = time.Hour

// Options configures a Sweeper.
type Options struct {
	// Interval is the pause between cleanup passes; 0 selects
	// DefaultInterval.
	Interval time.Duration

	// MaxRetryElapsed bounds the retry window of one failing pass.
	// 0 selects one minute.
	MaxRetryElapsed time.Duration

	// Logger receives pass outcomes; nil selects slog.Default().
	Logger *slog.Logger
}

// Sweeper invokes Backend.Cleanup on a fixed interval, retrying each
// failing pass with exponential backoff before giving up until the next
// tick.
type Sweeper struct {
	backend  api.Backend
	interval time.Duration
	maxRetry time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Sweeper for the given backend.
func New(backend api.Backend, opts Options) *Sweeper {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxRetry := opts.MaxRetryElapsed
	if maxRetry <= 0 {
		maxRetry = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		backend:  backend,
		interval: interval,
		maxRetry: maxRetry,
		logger:   logger,
	}
}

// Start launches the sweep loop. It returns immediately; the first pass
// runs after one interval. Starting a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass immediately, with the same retry policy as
// the background loop.
func (s *Sweeper) Sweep(ctx context.Context) error {
	return s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.maxRetry

	start := time.Now()
	err := backoff.Retry(func() error {
		return s.backend.Cleanup(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		s.logger.Error("cleanup pass failed",
			"error", err,
			"elapsed", time.Since(start))
		return err
	}

	s.logger.Debug("cleanup pass completed", "elapsed", time.Since(start))
	return nil
}
