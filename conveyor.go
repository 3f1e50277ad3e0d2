package conveyor

import (
	"context"
	"database/sql"

	"github.com/go-conveyor/conveyor/internal/store"
	"github.com/go-conveyor/conveyor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Backend              = api.Backend
	TaskMeta             = api.TaskMeta
	GroupMeta            = api.GroupMeta
	Request              = api.Request
	State                = api.State
	StoreOption          = api.StoreOption
	EncodeError          = api.EncodeError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewID                = api.NewID
	PendingMeta          = api.PendingMeta
	WithTraceback        = api.WithTraceback
	WithRequest          = api.WithRequest
	IsEncodeError        = api.IsEncodeError
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// ErrNotConfigured reports unusable backend configuration.
var ErrNotConfigured = api.ErrNotConfigured

// Re-export task states for convenience.

const (
	StatePending  = api.StatePending
	StateReceived = api.StateReceived
	StateStarted  = api.StateStarted
	StateRetry    = api.StateRetry
	StateSuccess  = api.StateSuccess
	StateFailure  = api.StateFailure
	StateRevoked  = api.StateRevoked
)

// BackendOptions configures the core backends. Network-backed
// implementations (MongoDB, Redis) carry their own option types in their
// packages.
type BackendOptions = store.Options

// Backend constructors
// These wrap the internal/store package so external callers never need to
// import internal packages.

// NewInMemoryBackend returns a non-durable Backend, best for tests.
func NewInMemoryBackend(opts BackendOptions) (Backend, error) {
	return store.NewMemoryBackend(opts)
}

// NewSQLiteBackend returns a Backend that persists results in a SQLite
// database. The caller owns the database handle.
func NewSQLiteBackend(db *sql.DB, opts BackendOptions) (Backend, error) {
	return store.NewSQLiteBackend(db, opts)
}

// Convenience helpers that just forward to the underlying Backend.

// StoreResult records a task outcome.
func StoreResult(ctx context.Context, b Backend, taskID string, result any, state State, opts ...StoreOption) error {
	return b.StoreResult(ctx, taskID, result, state, opts...)
}

// GetTaskMeta fetches the metadata of a task. Unknown task ids report a
// pending record rather than an error.
func GetTaskMeta(ctx context.Context, b Backend, taskID string) (*TaskMeta, error) {
	return b.GetTaskMeta(ctx, taskID)
}

// Forget removes a task record.
func Forget(ctx context.Context, b Backend, taskID string) error {
	return b.Forget(ctx, taskID)
}

// GetState fetches just the state of a task.
func GetState(ctx context.Context, b Backend, taskID string) (State, error) {
	return api.GetState(ctx, b, taskID)
}

// GetResult fetches just the result of a task.
func GetResult(ctx context.Context, b Backend, taskID string) (any, error) {
	return api.GetResult(ctx, b, taskID)
}
