package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from a result backend for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay backend operations.
type Observer interface {
	// OnStore is called after a task result has been stored.
	OnStore(ctx context.Context, taskID string, state State)

	// OnFetch is called after a task metadata lookup, including lookups
	// that resolved to the pending default.
	OnFetch(ctx context.Context, taskID string, state State)

	// OnForget is called after a task record has been deleted.
	OnForget(ctx context.Context, taskID string)

	// OnCleanup is called after a cleanup pass, for both successes and
	// failures (err != nil). tasks and groups report how many expired
	// records were removed from each collection.
	OnCleanup(ctx context.Context, tasks, groups int64, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStore(ctx context.Context, taskID string, state State)       {}
func (NoopObserver) OnFetch(ctx context.Context, taskID string, state State)       {}
func (NoopObserver) OnForget(ctx context.Context, taskID string)                   {}
func (NoopObserver) OnCleanup(ctx context.Context, tasks, groups int64, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStore(ctx context.Context, taskID string, state State) {
	for _, o := range c.observers {
		o.OnStore(ctx, taskID, state)
	}
}

func (c *CompositeObserver) OnFetch(ctx context.Context, taskID string, state State) {
	for _, o := range c.observers {
		o.OnFetch(ctx, taskID, state)
	}
}

func (c *CompositeObserver) OnForget(ctx context.Context, taskID string) {
	for _, o := range c.observers {
		o.OnForget(ctx, taskID)
	}
}

func (c *CompositeObserver) OnCleanup(ctx context.Context, tasks, groups int64, err error) {
	for _, o := range c.observers {
		o.OnCleanup(ctx, tasks, groups, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs backend operations using
// the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStore(ctx context.Context, taskID string, state State) {
	o.Logger.DebugContext(ctx, "result_stored",
		slog.String("task_id", taskID),
		slog.String("state", string(state)),
	)
}

func (o *LoggingObserver) OnFetch(ctx context.Context, taskID string, state State) {
	o.Logger.DebugContext(ctx, "result_fetched",
		slog.String("task_id", taskID),
		slog.String("state", string(state)),
	)
}

func (o *LoggingObserver) OnForget(ctx context.Context, taskID string) {
	o.Logger.DebugContext(ctx, "result_forgotten",
		slog.String("task_id", taskID),
	)
}

func (o *LoggingObserver) OnCleanup(ctx context.Context, tasks, groups int64, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "cleanup_completed",
		slog.Int64("tasks_deleted", tasks),
		slog.Int64("groups_deleted", groups),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters for backend operations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	stores          atomic.Int64
	fetches         atomic.Int64
	forgets         atomic.Int64
	cleanups        atomic.Int64
	cleanupFailures atomic.Int64
	tasksDeleted    atomic.Int64
	groupsDeleted   atomic.Int64
}

var _ Observer = (*BasicMetrics)(nil)

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Stores          int64
	Fetches         int64
	Forgets         int64
	Cleanups        int64
	CleanupFailures int64
	TasksDeleted    int64
	GroupsDeleted   int64
}

func (m *BasicMetrics) OnStore(ctx context.Context, taskID string, state State) {
	m.stores.Add(1)
}

func (m *BasicMetrics) OnFetch(ctx context.Context, taskID string, state State) {
	m.fetches.Add(1)
}

func (m *BasicMetrics) OnForget(ctx context.Context, taskID string) {
	m.forgets.Add(1)
}

func (m *BasicMetrics) OnCleanup(ctx context.Context, tasks, groups int64, err error) {
	m.cleanups.Add(1)
	if err != nil {
		m.cleanupFailures.Add(1)
		return
	}
	m.tasksDeleted.Add(tasks)
	m.groupsDeleted.Add(groups)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		Stores:          m.stores.Load(),
		Fetches:         m.fetches.Load(),
		Forgets:         m.forgets.Load(),
		Cleanups:        m.cleanups.Load(),
		CleanupFailures: m.cleanupFailures.Load(),
		TasksDeleted:    m.tasksDeleted.Load(),
		GroupsDeleted:   m.groupsDeleted.Load(),
	}
}
