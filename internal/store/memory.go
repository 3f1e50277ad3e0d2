package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// MemoryBackend is a simple, goroutine-safe result backend backed by maps.
//
// Results are run through the configured serializer on store and fetch, so
// encode failures surface exactly as they would with a persistent backend.
// Intended for tests and single-process setups.
type MemoryBackend struct {
	mu     sync.RWMutex
	tasks  map[string]memoryTaskRecord
	groups map[string]api.GroupMeta

	ser      serializer.Serializer
	expires  time.Duration
	extended bool
	obs      api.Observer
}

// Ensure MemoryBackend implements the interface.
var _ api.Backend = (*MemoryBackend)(nil)

type memoryTaskRecord struct {
	meta    api.TaskMeta
	payload any
}

// NewMemoryBackend creates a MemoryBackend.
func NewMemoryBackend(opts Options) (*MemoryBackend, error) {
	ser, err := opts.serializer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrNotConfigured, err)
	}

	return &MemoryBackend{
		tasks:    make(map[string]memoryTaskRecord),
		groups:   make(map[string]api.GroupMeta),
		ser:      ser,
		expires:  opts.Expires,
		extended: opts.ResultExtended,
		obs:      opts.observer(),
	}, nil
}

func (m *MemoryBackend) StoreResult(ctx context.Context, taskID string, result any, state api.State, opts ...api.StoreOption) error {
	o := api.NewStoreOptions(opts...)

	payload, err := m.ser.Encode(result)
	if err != nil {
		return &api.EncodeError{Err: err}
	}

	meta := api.TaskMeta{
		TaskID:    taskID,
		State:     state,
		Traceback: o.Traceback,
		DateDone:  time.Now().UTC(),
	}
	if req := o.Request; req != nil {
		meta.ParentID = req.ParentID
		meta.Children = append([]string(nil), req.Children...)
		if m.extended {
			meta.Name = req.TaskName
			meta.Args = req.Args
			meta.Kwargs = req.Kwargs
			meta.Worker = req.Worker
			meta.Queue = req.Queue
			meta.Retries = req.Retries
		}
	}

	m.mu.Lock()
	m.tasks[taskID] = memoryTaskRecord{meta: meta, payload: payload}
	m.mu.Unlock()

	m.obs.OnStore(ctx, taskID, state)
	return nil
}

func (m *MemoryBackend) GetTaskMeta(ctx context.Context, taskID string) (*api.TaskMeta, error) {
	m.mu.RLock()
	rec, ok := m.tasks[taskID]
	m.mu.RUnlock()

	if !ok {
		meta := api.PendingMeta(taskID)
		m.obs.OnFetch(ctx, taskID, meta.State)
		return meta, nil
	}

	result, err := m.ser.Decode(rec.payload)
	if err != nil {
		return nil, err
	}

	meta := rec.meta
	meta.Result = result

	m.obs.OnFetch(ctx, taskID, meta.State)
	return &meta, nil
}

func (m *MemoryBackend) Forget(ctx context.Context, taskID string) error {
	m.mu.Lock()
	delete(m.tasks, taskID)
	m.mu.Unlock()

	m.obs.OnForget(ctx, taskID)
	return nil
}

func (m *MemoryBackend) SaveGroup(ctx context.Context, groupID string, children []string) error {
	m.mu.Lock()
	m.groups[groupID] = api.GroupMeta{
		GroupID:  groupID,
		Children: append([]string(nil), children...),
		DateDone: time.Now().UTC(),
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) RestoreGroup(ctx context.Context, groupID string) (*api.GroupMeta, error) {
	m.mu.RLock()
	gm, ok := m.groups[groupID]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return &gm, nil
}

func (m *MemoryBackend) DeleteGroup(ctx context.Context, groupID string) error {
	m.mu.Lock()
	delete(m.groups, groupID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Cleanup(ctx context.Context) error {
	if m.expires <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-m.expires)

	var tasks, groups int64

	m.mu.Lock()
	for id, rec := range m.tasks {
		if rec.meta.DateDone.Before(cutoff) {
			delete(m.tasks, id)
			tasks++
		}
	}
	for id, gm := range m.groups {
		if gm.DateDone.Before(cutoff) {
			delete(m.groups, id)
			groups++
		}
	}
	m.mu.Unlock()

	m.obs.OnCleanup(ctx, tasks, groups, nil)
	return nil
}

func (m *MemoryBackend) Close(ctx context.Context) error {
	return nil
}
