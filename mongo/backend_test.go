package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// fakeCollection keeps BSON-encoded documents in a map keyed by _id, so
// backend tests exercise real document encoding without a server.
type fakeCollection struct {
	docs map[string]bson.Raw
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]bson.Raw)}
}

func filterID(filter interface{}) string {
	id, _ := filter.(bson.M)["_id"].(string)
	return id
}

func (f *fakeCollection) ReplaceOne(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	raw, err := bson.Marshal(replacement)
	if err != nil {
		return nil, err
	}
	id := filterID(filter)
	_, existed := f.docs[id]
	f.docs[id] = raw

	res := &mongo.UpdateResult{}
	if existed {
		res.MatchedCount, res.ModifiedCount = 1, 1
	} else {
		res.UpsertedCount = 1
		res.UpsertedID = id
	}
	return res, nil
}

func (f *fakeCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	raw, ok := f.docs[filterID(filter)]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(raw, nil, nil)
}

func (f *fakeCollection) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	id := filterID(filter)
	res := &mongo.DeleteResult{}
	if _, ok := f.docs[id]; ok {
		delete(f.docs, id)
		res.DeletedCount = 1
	}
	return res, nil
}

func (f *fakeCollection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	cutoff := filter.(bson.M)["date_done"].(bson.M)["$lt"].(time.Time)

	res := &mongo.DeleteResult{}
	for id, raw := range f.docs {
		if raw.Lookup("date_done").Time().Before(cutoff) {
			delete(f.docs, id)
			res.DeletedCount++
		}
	}
	return res, nil
}

var _ collection = (*fakeCollection)(nil)

func newFakeBackend(t *testing.T, opts ...Option) (*Backend, *fakeCollection, *fakeCollection) {
	t.Helper()

	b, err := New(context.Background(), "mongodb://localhost", opts...)
	require.NoError(t, err)

	tasks := newFakeCollection()
	groups := newFakeCollection()
	b.taskColl = tasks
	b.groupColl = groups
	return b, tasks, groups
}

func TestBackendStoreAndGet(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	err := b.StoreResult(ctx, "task-1", 42, api.StateSuccess)
	require.NoError(t, err)

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "task-1", meta.TaskID)
	require.Equal(t, api.StateSuccess, meta.State)
	require.EqualValues(t, 42, meta.Result)
	require.False(t, meta.DateDone.IsZero())
}

func TestBackendBSONStoresNativeDocuments(t *testing.T) {
	ctx := context.Background()
	b, tasks, _ := newFakeBackend(t)

	err := b.StoreResult(ctx, "task-1", map[string]any{"sum": 42}, api.StateSuccess)
	require.NoError(t, err)

	// The stored document carries the result as a subdocument, not as an
	// opaque payload.
	raw := tasks.docs["task-1"]
	require.EqualValues(t, 42, raw.Lookup("result", "sum").AsInt64())
	require.Equal(t, "SUCCESS", raw.Lookup("status").StringValue())

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, primitive.D{{Key: "sum", Value: int32(42)}}, meta.Result)
}

func TestBackendJSONSerializer(t *testing.T) {
	ctx := context.Background()
	b, tasks, _ := newFakeBackend(t, WithSerializer(serializer.NameJSON))

	err := b.StoreResult(ctx, "task-1", map[string]any{"sum": 42}, api.StateSuccess)
	require.NoError(t, err)

	// Non-native serializers store the payload as a string field.
	raw := tasks.docs["task-1"]
	require.Equal(t, `{"sum":42}`, raw.Lookup("result").StringValue())

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"sum": float64(42)}, meta.Result)
}

func TestBackendGetUnknownIsPending(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	meta, err := b.GetTaskMeta(ctx, "never-stored")
	require.NoError(t, err)
	require.Equal(t, api.StatePending, meta.State)
	require.Equal(t, "never-stored", meta.TaskID)
	require.Nil(t, meta.Result)
}

func TestBackendUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	b, tasks, _ := newFakeBackend(t)

	require.NoError(t, b.StoreResult(ctx, "task-1", nil, api.StateStarted))
	require.NoError(t, b.StoreResult(ctx, "task-1", "done", api.StateSuccess))

	require.Len(t, tasks.docs, 1)

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, api.StateSuccess, meta.State)
	require.Equal(t, "done", meta.Result)
}

func TestBackendFailureWithTraceback(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	err := b.StoreResult(ctx, "task-1", "division by zero", api.StateFailure,
		api.WithTraceback("Traceback (most recent call last): ..."))
	require.NoError(t, err)

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, api.StateFailure, meta.State)
	require.Equal(t, "Traceback (most recent call last): ...", meta.Traceback)
}

func TestBackendRequestContext(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	req := &api.Request{
		TaskName: "tasks.add",
		ParentID: "parent-1",
		Children: []string{"child-1"},
	}
	require.NoError(t, b.StoreResult(ctx, "task-1", nil, api.StateSuccess, api.WithRequest(req)))

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "parent-1", meta.ParentID)
	require.Equal(t, []string{"child-1"}, meta.Children)
	// Extended fields are off by default.
	require.Empty(t, meta.Name)
}

func TestBackendResultExtended(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t, WithResultExtended())

	req := &api.Request{
		TaskName: "tasks.add",
		Args:     []any{2, 2},
		Kwargs:   map[string]any{"carry": 0},
		Worker:   "worker-1",
		Queue:    "default",
		Retries:  3,
	}
	require.NoError(t, b.StoreResult(ctx, "task-1", 4, api.StateSuccess, api.WithRequest(req)))

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "tasks.add", meta.Name)
	require.Equal(t, "worker-1", meta.Worker)
	require.Equal(t, "default", meta.Queue)
	require.Equal(t, 3, meta.Retries)
	require.NotNil(t, meta.Args)
	require.NotNil(t, meta.Kwargs)
}

func TestBackendEncodeError(t *testing.T) {
	ctx := context.Background()
	b, tasks, _ := newFakeBackend(t)

	err := b.StoreResult(ctx, "task-1", make(chan int), api.StateSuccess)
	require.Error(t, err)
	require.True(t, api.IsEncodeError(err))
	require.Empty(t, tasks.docs)
}

func TestBackendForget(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	require.NoError(t, b.StoreResult(ctx, "task-1", 1, api.StateSuccess))
	require.NoError(t, b.Forget(ctx, "task-1"))

	meta, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, api.StatePending, meta.State)

	require.NoError(t, b.Forget(ctx, "never-stored"))
}

func TestBackendGroups(t *testing.T) {
	ctx := context.Background()
	b, _, groups := newFakeBackend(t)

	children := []string{"t1", "t2", "t3"}
	require.NoError(t, b.SaveGroup(ctx, "group-1", children))

	// Group documents keep the member list under "result".
	raw := groups.docs["group-1"]
	var doc groupDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	require.Equal(t, children, doc.Children)

	gm, err := b.RestoreGroup(ctx, "group-1")
	require.NoError(t, err)
	require.NotNil(t, gm)
	require.Equal(t, "group-1", gm.GroupID)
	require.Equal(t, children, gm.Children)

	require.NoError(t, b.DeleteGroup(ctx, "group-1"))

	gm, err = b.RestoreGroup(ctx, "group-1")
	require.NoError(t, err)
	require.Nil(t, gm)
}

func storeDatedDoc(t *testing.T, coll *fakeCollection, id string, dateDone time.Time) {
	t.Helper()
	raw, err := bson.Marshal(taskDoc{ID: id, State: "SUCCESS", DateDone: dateDone})
	require.NoError(t, err)
	coll.docs[id] = raw
}

func TestBackendCleanup(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	b, tasks, groups := newFakeBackend(t, WithObserver(metrics))

	now := time.Now().UTC()
	storeDatedDoc(t, tasks, "old-task", now.Add(-48*time.Hour))
	storeDatedDoc(t, tasks, "fresh-task", now)

	rawGroup, err := bson.Marshal(groupDoc{ID: "old-group", Children: []string{"old-task"}, DateDone: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	groups.docs["old-group"] = rawGroup

	require.NoError(t, b.Cleanup(ctx))

	require.NotContains(t, tasks.docs, "old-task")
	require.Contains(t, tasks.docs, "fresh-task")
	require.NotContains(t, groups.docs, "old-group")

	snap := metrics.Snapshot()
	require.EqualValues(t, 1, snap.TasksDeleted)
	require.EqualValues(t, 1, snap.GroupsDeleted)
}

func TestBackendCleanupDisabled(t *testing.T) {
	ctx := context.Background()
	b, tasks, _ := newFakeBackend(t, WithExpires(NoExpiry))

	storeDatedDoc(t, tasks, "old-task", time.Now().UTC().Add(-48*time.Hour))

	require.NoError(t, b.Cleanup(ctx))
	require.Contains(t, tasks.docs, "old-task")
}

func TestBackendCloseDropsCachedConnection(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newFakeBackend(t)

	require.NoError(t, b.StoreResult(ctx, "task-1", 1, api.StateSuccess))
	require.NoError(t, b.Close(ctx))

	b.mu.Lock()
	tasks, groups := b.taskColl, b.groupColl
	b.mu.Unlock()
	require.Nil(t, tasks)
	require.Nil(t, groups)

	// Closing an already-closed backend is a no-op.
	require.NoError(t, b.Close(ctx))
}

func TestBackendObserverCallbacks(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	b, _, _ := newFakeBackend(t, WithObserver(metrics))

	require.NoError(t, b.StoreResult(ctx, "task-1", 1, api.StateSuccess))
	_, err := b.GetTaskMeta(ctx, "task-1")
	require.NoError(t, err)
	_, err = b.GetTaskMeta(ctx, "missing")
	require.NoError(t, err)
	require.NoError(t, b.Forget(ctx, "task-1"))

	snap := metrics.Snapshot()
	require.EqualValues(t, 1, snap.Stores)
	require.EqualValues(t, 2, snap.Fetches)
	require.EqualValues(t, 1, snap.Forgets)
}
