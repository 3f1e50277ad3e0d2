package api

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a backend is constructed from
	// settings that cannot work (no hosts, missing credentials for the
	// selected auth mechanism, unknown serializer, ...).
	ErrNotConfigured = errors.New("result backend is not configured")
)

// EncodeError wraps a serialization failure: the value could not be
// encoded by the configured serializer, or the storage layer rejected the
// resulting document (too large, unsupported field type). It is surfaced
// to the caller, never retried.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsEncodeError reports whether err is (or wraps) an EncodeError.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

// StoreOptions collects optional arguments to Backend.StoreResult.
type StoreOptions struct {
	Traceback string
	Request   *Request
}

// StoreOption configures a single StoreResult call.
type StoreOption func(*StoreOptions)

// WithTraceback attaches failure detail to a stored result.
func WithTraceback(tb string) StoreOption {
	return func(o *StoreOptions) { o.Traceback = tb }
}

// WithRequest attaches task request context to a stored result.
func WithRequest(req *Request) StoreOption {
	return func(o *StoreOptions) { o.Request = req }
}

// NewStoreOptions folds a list of StoreOption into a StoreOptions value.
// Backend implementations call this at the top of StoreResult.
func NewStoreOptions(opts ...StoreOption) StoreOptions {
	var o StoreOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Backend is the common interface of all result backends.
//
// Records are keyed uniquely: task metadata by task id, group metadata by
// group id. Storing is an upsert; storing the same id twice replaces the
// earlier record.
type Backend interface {
	// StoreResult upserts the metadata record for taskID.
	StoreResult(ctx context.Context, taskID string, result any, state State, opts ...StoreOption) error

	// GetTaskMeta fetches the metadata record for taskID. A task id with
	// no record yields PendingMeta(taskID), not an error.
	GetTaskMeta(ctx context.Context, taskID string) (*TaskMeta, error)

	// Forget deletes the metadata record for taskID, if any.
	Forget(ctx context.Context, taskID string) error

	// SaveGroup upserts the group record for groupID with the ordered
	// member task ids.
	SaveGroup(ctx context.Context, groupID string, children []string) error

	// RestoreGroup fetches the group record for groupID. A group id with
	// no record yields (nil, nil).
	RestoreGroup(ctx context.Context, groupID string) (*GroupMeta, error)

	// DeleteGroup deletes the group record for groupID, if any.
	DeleteGroup(ctx context.Context, groupID string) error

	// Cleanup deletes task and group records older than the backend's
	// configured expiry. It is a no-op when expiry is disabled.
	Cleanup(ctx context.Context) error

	// Close releases any connections held by the backend.
	Close(ctx context.Context) error
}

// GetState is a convenience wrapper returning just the task's state.
func GetState(ctx context.Context, b Backend, taskID string) (State, error) {
	meta, err := b.GetTaskMeta(ctx, taskID)
	if err != nil {
		return "", err
	}
	return meta.State, nil
}

// GetResult is a convenience wrapper returning just the task's result.
func GetResult(ctx context.Context, b Backend, taskID string) (any, error) {
	meta, err := b.GetTaskMeta(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return meta.Result, nil
}
