// Package redis implements the Redis result backend.
//
// Records live under a configurable key prefix:
//
//	<prefix>task:<task id>    => encoded task metadata
//	<prefix>group:<group id>  => encoded group metadata
//
// Record expiry maps onto native key TTLs, so Cleanup never has work to
// do here; it exists to satisfy the Backend contract.
package redis

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// DefaultPrefix namespaces all keys written by the backend.
const DefaultPrefix = "conveyor:"

// DefaultExpires is the record TTL unless overridden.
const DefaultExpires = 24 * time.Hour

// NoExpiry disables record TTLs.
const NoExpiry = time.Duration(-1)

// Options configures a Redis backend.
type Options struct {
	// Prefix namespaces the keys; empty selects DefaultPrefix.
	Prefix string

	// Serializer names a registered serializer; empty selects "json".
	Serializer string

	// Expires is the TTL applied to every record. 0 selects
	// DefaultExpires, NoExpiry disables TTLs.
	Expires time.Duration

	// ResultExtended persists the extended task fields from the request.
	ResultExtended bool

	// Observer receives operation callbacks. Nil means none.
	Observer api.Observer
}

// Backend is the Redis result backend. The caller owns the client;
// Close does not close it.
type Backend struct {
	client   *redis.Client
	prefix   string
	ser      serializer.Serializer
	expires  time.Duration
	extended bool
	obs      api.Observer
}

// Ensure Backend implements the interface.
var _ api.Backend = (*Backend)(nil)

// New creates a Redis backend on an existing client.
func New(client *redis.Client, opts Options) (*Backend, error) {
	name := opts.Serializer
	if name == "" {
		name = serializer.NameJSON
	}
	ser, err := serializer.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrNotConfigured, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	expires := opts.Expires
	if expires == 0 {
		expires = DefaultExpires
	}
	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	return &Backend{
		client:   client,
		prefix:   prefix,
		ser:      ser,
		expires:  expires,
		extended: opts.ResultExtended,
		obs:      obs,
	}, nil
}

func (b *Backend) keyTask(id string) string {
	return b.prefix + "task:" + id
}

func (b *Backend) keyGroup(id string) string {
	return b.prefix + "group:" + id
}

func (b *Backend) ttl() time.Duration {
	if b.expires > 0 {
		return b.expires
	}
	return 0
}

// taskPayload is the stored shape of a task record. The result itself is
// carried as serializer payload bytes; the envelope is gob.
type taskPayload struct {
	TaskID    string
	State     string
	Result    []byte
	Traceback string
	DateDone  time.Time
	ParentID  string
	Children  []string

	Name    string
	Args    []byte
	Kwargs  []byte
	Worker  string
	Queue   string
	Retries int
}

type groupPayload struct {
	GroupID  string
	Children []string
	DateDone time.Time
}

func encodePayload(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte, into any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(into)
}

// resultBytes runs a value through the serializer and normalizes the
// payload to bytes for storage.
func (b *Backend) resultBytes(v any) ([]byte, error) {
	payload, err := b.ser.Encode(v)
	if err != nil {
		return nil, &api.EncodeError{Err: err}
	}
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return nil, &api.EncodeError{Err: fmt.Errorf("unsupported payload type %T", payload)}
	}
}

func (b *Backend) StoreResult(ctx context.Context, taskID string, result any, state api.State, opts ...api.StoreOption) error {
	o := api.NewStoreOptions(opts...)

	resultData, err := b.resultBytes(result)
	if err != nil {
		return err
	}

	payload := taskPayload{
		TaskID:    taskID,
		State:     string(state),
		Result:    resultData,
		Traceback: o.Traceback,
		DateDone:  time.Now().UTC(),
	}
	if req := o.Request; req != nil {
		payload.ParentID = req.ParentID
		payload.Children = req.Children
		if b.extended {
			payload.Name = req.TaskName
			payload.Worker = req.Worker
			payload.Queue = req.Queue
			payload.Retries = req.Retries
			if req.Args != nil {
				if payload.Args, err = b.resultBytes(req.Args); err != nil {
					return err
				}
			}
			if req.Kwargs != nil {
				if payload.Kwargs, err = b.resultBytes(req.Kwargs); err != nil {
					return err
				}
			}
		}
	}

	data, err := encodePayload(payload)
	if err != nil {
		return &api.EncodeError{Err: err}
	}

	if err := b.client.Set(ctx, b.keyTask(taskID), data, b.ttl()).Err(); err != nil {
		return err
	}

	b.obs.OnStore(ctx, taskID, state)
	return nil
}

func (b *Backend) GetTaskMeta(ctx context.Context, taskID string) (*api.TaskMeta, error) {
	data, err := b.client.Get(ctx, b.keyTask(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		meta := api.PendingMeta(taskID)
		b.obs.OnFetch(ctx, taskID, meta.State)
		return meta, nil
	}
	if err != nil {
		return nil, err
	}

	var payload taskPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}

	meta := &api.TaskMeta{
		TaskID:    payload.TaskID,
		State:     api.State(payload.State),
		Traceback: payload.Traceback,
		DateDone:  payload.DateDone,
		ParentID:  payload.ParentID,
		Children:  payload.Children,
		Name:      payload.Name,
		Worker:    payload.Worker,
		Queue:     payload.Queue,
		Retries:   payload.Retries,
	}
	if payload.Result != nil {
		if meta.Result, err = b.ser.Decode(payload.Result); err != nil {
			return nil, err
		}
	}
	if payload.Args != nil {
		if meta.Args, err = b.ser.Decode(payload.Args); err != nil {
			return nil, err
		}
	}
	if payload.Kwargs != nil {
		if meta.Kwargs, err = b.ser.Decode(payload.Kwargs); err != nil {
			return nil, err
		}
	}

	b.obs.OnFetch(ctx, taskID, meta.State)
	return meta, nil
}

func (b *Backend) Forget(ctx context.Context, taskID string) error {
	if err := b.client.Del(ctx, b.keyTask(taskID)).Err(); err != nil {
		return err
	}
	b.obs.OnForget(ctx, taskID)
	return nil
}

func (b *Backend) SaveGroup(ctx context.Context, groupID string, children []string) error {
	data, err := encodePayload(groupPayload{
		GroupID:  groupID,
		Children: children,
		DateDone: time.Now().UTC(),
	})
	if err != nil {
		return &api.EncodeError{Err: err}
	}
	return b.client.Set(ctx, b.keyGroup(groupID), data, b.ttl()).Err()
}

func (b *Backend) RestoreGroup(ctx context.Context, groupID string) (*api.GroupMeta, error) {
	data, err := b.client.Get(ctx, b.keyGroup(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payload groupPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &api.GroupMeta{
		GroupID:  payload.GroupID,
		Children: payload.Children,
		DateDone: payload.DateDone,
	}, nil
}

func (b *Backend) DeleteGroup(ctx context.Context, groupID string) error {
	return b.client.Del(ctx, b.keyGroup(groupID)).Err()
}

// Cleanup is a no-op: expiry is enforced natively through key TTLs.
func (b *Backend) Cleanup(ctx context.Context) error {
	return nil
}

// Close is a no-op; the caller owns the client.
func (b *Backend) Close(ctx context.Context) error {
	return nil
}
