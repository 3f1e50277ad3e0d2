package api

import (
	"time"

	"github.com/google/uuid"
)

// TaskMeta is the persisted record of a task's execution state and result.
//
// Result holds whatever the task returned, decoded through the backend's
// serializer; its concrete type therefore depends on the serializer in use
// (e.g. json decodes numbers as float64, gob restores registered types).
//
// The Name/Args/Kwargs/Worker/Queue/Retries fields are only populated when
// the backend was configured with ResultExtended.
type TaskMeta struct {
	TaskID    string
	State     State
	Result    any
	Traceback string
	DateDone  time.Time
	ParentID  string
	Children  []string

	// Extended result fields.
	Name    string
	Args    any
	Kwargs  any
	Worker  string
	Queue   string
	Retries int
}

// GroupMeta is the persisted record of a task group: the ordered ids of its
// member tasks and when the group result was saved.
type GroupMeta struct {
	GroupID  string
	Children []string
	DateDone time.Time
}

// Request carries per-task context that a worker can attach when storing a
// result. Backends persist ParentID and Children always, and the remaining
// fields when ResultExtended is enabled.
type Request struct {
	TaskName string
	Args     []any
	Kwargs   map[string]any
	Worker   string
	Queue    string
	Retries  int
	ParentID string
	Children []string
}

// PendingMeta is the well-defined default returned when a task id has no
// record in the backend.
func PendingMeta(taskID string) *TaskMeta {
	return &TaskMeta{
		TaskID: taskID,
		State:  StatePending,
	}
}

// NewID returns a new unique task (or group) identifier.
func NewID() string {
	return uuid.NewString()
}
