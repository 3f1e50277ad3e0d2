package api

// State is the execution state of a task as recorded in a result backend.
type State string

const (
	// StatePending is the default state: the task is unknown or still
	// waiting to execute. A lookup for a task id the backend has never
	// seen reports StatePending rather than an error.
	StatePending State = "PENDING"

	// StateReceived means a worker has accepted the task.
	StateReceived State = "RECEIVED"

	// StateStarted means a worker has begun executing the task.
	StateStarted State = "STARTED"

	// StateRetry means the task failed and is waiting to be retried.
	StateRetry State = "RETRY"

	// StateSuccess is a terminal state: the task completed and its
	// result is available.
	StateSuccess State = "SUCCESS"

	// StateFailure is a terminal state: the task raised an error; the
	// stored result is the error description and Traceback carries the
	// failure detail.
	StateFailure State = "FAILURE"

	// StateRevoked is a terminal state: the task was cancelled before
	// or during execution.
	StateRevoked State = "REVOKED"
)

// IsReady reports whether the state is terminal, i.e. the task has
// finished and its stored result will not change again.
func (s State) IsReady() bool {
	switch s {
	case StateSuccess, StateFailure, StateRevoked:
		return true
	}
	return false
}

// IsException reports whether the state represents an error outcome.
func (s State) IsException() bool {
	switch s {
	case StateRetry, StateFailure, StateRevoked:
		return true
	}
	return false
}

// IsSuccessful reports whether the task completed without error.
func (s State) IsSuccessful() bool {
	return s == StateSuccess
}

// IsPropagate reports whether fetching the result should surface the
// stored error to the caller.
func (s State) IsPropagate() bool {
	return s == StateFailure || s == StateRevoked
}

// AllStates lists every state a backend may record, in lifecycle order.
var AllStates = []State{
	StatePending,
	StateReceived,
	StateStarted,
	StateRetry,
	StateSuccess,
	StateFailure,
	StateRevoked,
}
