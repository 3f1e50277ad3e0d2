package mongo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// Backend is the MongoDB result backend. Task metadata is kept in one
// collection, group metadata in another, both keyed by "_id".
//
// The connection is established lazily on first use and reused afterwards.
type Backend struct {
	cfg Config
	uri string // compliance-normalized, for AsURI

	ser      serializer.Serializer
	resolver Resolver
	obs      api.Observer

	mu        sync.Mutex
	client    *mongo.Client
	taskColl  collection
	groupColl collection
}

// Ensure Backend implements the interface.
var _ api.Backend = (*Backend)(nil)

// collection is the slice of *mongo.Collection the backend uses. Tests
// substitute an in-memory fake that encodes real BSON.
type collection interface {
	ReplaceOne(ctx context.Context, filter, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

var _ collection = (*mongo.Collection)(nil)

// New creates a MongoDB backend from a connection URI. Options override
// individual URI components, the way programmatic backend settings
// override a connection string. ctx bounds seedlist DNS resolution only;
// the server connection is dialed lazily.
func New(ctx context.Context, uri string, opts ...Option) (*Backend, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	parsed, err := ParseURI(ctx, uri, s.resolver)
	if err != nil {
		return nil, err
	}

	cfg := merge(parsed, s.cfg)
	cfg.applyDefaults()

	ser, err := serializer.Get(cfg.Serializer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrNotConfigured, err)
	}

	obs := s.observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	return &Backend{
		cfg:      cfg,
		uri:      EnsureURICompliance(uri),
		ser:      ser,
		resolver: s.resolver,
		obs:      obs,
	}, nil
}

// merge overlays non-zero override fields onto the parsed URI config.
func merge(parsed, override Config) Config {
	cfg := parsed
	if len(override.Hosts) > 0 {
		cfg.Hosts = override.Hosts
	}
	if override.User != "" {
		cfg.User = override.User
	}
	if override.Password != "" {
		cfg.Password = override.Password
	}
	if override.Database != "" {
		cfg.Database = override.Database
	}
	if override.ReplicaSet != "" {
		cfg.ReplicaSet = override.ReplicaSet
	}
	if override.AuthMechanism != "" {
		cfg.AuthMechanism = override.AuthMechanism
	}
	if override.AuthSource != "" {
		cfg.AuthSource = override.AuthSource
	}
	if override.TLS {
		cfg.TLS = true
	}
	if override.MaxPoolSize != 0 {
		cfg.MaxPoolSize = override.MaxPoolSize
	}
	if override.TaskMetaCollection != "" {
		cfg.TaskMetaCollection = override.TaskMetaCollection
	}
	if override.GroupMetaCollection != "" {
		cfg.GroupMetaCollection = override.GroupMetaCollection
	}
	if override.Expires != 0 {
		cfg.Expires = override.Expires
	}
	if override.Serializer != "" {
		cfg.Serializer = override.Serializer
	}
	if override.ResultExtended {
		cfg.ResultExtended = true
	}
	return cfg
}

// Config returns the resolved configuration.
func (b *Backend) Config() Config {
	return b.cfg
}

// AsURI returns the backend's connection URI. The password is masked
// unless includePassword is true.
func (b *Backend) AsURI(includePassword bool) string {
	if includePassword {
		return b.uri
	}
	return maskPassword(b.uri)
}

// clientOptions builds the driver options: pool-size defaults merged with
// overrides, credential and TLS derived from the parsed URI.
func (b *Backend) clientOptions() *options.ClientOptions {
	opts := options.Client().
		SetHosts(b.cfg.Hosts).
		SetMaxPoolSize(b.cfg.MaxPoolSize)

	if b.cfg.ReplicaSet != "" {
		opts.SetReplicaSet(b.cfg.ReplicaSet)
	}
	if b.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{})
	}
	if b.cfg.User != "" || b.cfg.AuthMechanism != "" {
		source := b.cfg.AuthSource
		if source == "" {
			source = b.cfg.Database
		}
		cred := options.Credential{
			AuthMechanism: b.cfg.AuthMechanism,
			AuthSource:    source,
			Username:      b.cfg.User,
		}
		if b.cfg.Password != "" {
			cred.Password = b.cfg.Password
			cred.PasswordSet = true
		}
		opts.SetAuth(cred)
	}
	return opts
}

// connect dials the server once, caches the collections, and hands them
// out under the mutex so operations never race Close. A mechanism that
// requires a missing username surfaces the driver's configuration error
// here.
func (b *Backend) connect(ctx context.Context) (tasks, groups collection, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.taskColl != nil {
		return b.taskColl, b.groupColl, nil
	}

	client, err := mongo.Connect(ctx, b.clientOptions())
	if err != nil {
		return nil, nil, err
	}

	db := client.Database(b.cfg.Database)
	b.client = client
	b.taskColl = db.Collection(b.cfg.TaskMetaCollection)
	b.groupColl = db.Collection(b.cfg.GroupMetaCollection)
	return b.taskColl, b.groupColl, nil
}

// taskDoc is the persisted shape of a task metadata record.
type taskDoc struct {
	ID        string    `bson:"_id"`
	State     string    `bson:"status"`
	Result    any       `bson:"result,omitempty"`
	Traceback string    `bson:"traceback,omitempty"`
	DateDone  time.Time `bson:"date_done"`
	ParentID  string    `bson:"parent_id,omitempty"`
	Children  []string  `bson:"children,omitempty"`

	Name    string `bson:"name,omitempty"`
	Args    any    `bson:"args,omitempty"`
	Kwargs  any    `bson:"kwargs,omitempty"`
	Worker  string `bson:"worker,omitempty"`
	Queue   string `bson:"queue,omitempty"`
	Retries int    `bson:"retries,omitempty"`
}

// groupDoc is the persisted shape of a group metadata record.
type groupDoc struct {
	ID       string    `bson:"_id"`
	Children []string  `bson:"result"`
	DateDone time.Time `bson:"date_done"`
}

// encode runs a value through the serializer. The bson serializer is
// native here: the value is stored directly inside the document.
func (b *Backend) encode(v any) (any, error) {
	if b.ser.Name() == serializer.NameBSON {
		return v, nil
	}
	payload, err := b.ser.Encode(v)
	if err != nil {
		return nil, &api.EncodeError{Err: err}
	}
	return payload, nil
}

func (b *Backend) decode(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	if b.ser.Name() == serializer.NameBSON {
		return payload, nil
	}
	return b.ser.Decode(payload)
}

func (b *Backend) StoreResult(ctx context.Context, taskID string, result any, state api.State, opts ...api.StoreOption) error {
	tasks, _, err := b.connect(ctx)
	if err != nil {
		return err
	}
	o := api.NewStoreOptions(opts...)

	encoded, err := b.encode(result)
	if err != nil {
		return err
	}

	doc := taskDoc{
		ID:        taskID,
		State:     string(state),
		Result:    encoded,
		Traceback: o.Traceback,
		DateDone:  time.Now().UTC(),
	}
	if req := o.Request; req != nil {
		doc.ParentID = req.ParentID
		doc.Children = req.Children
		if b.cfg.ResultExtended {
			doc.Name = req.TaskName
			doc.Worker = req.Worker
			doc.Queue = req.Queue
			doc.Retries = req.Retries
			if doc.Args, err = b.encode(req.Args); err != nil {
				return err
			}
			if doc.Kwargs, err = b.encode(req.Kwargs); err != nil {
				return err
			}
		}
	}

	// Catch invalid documents before they hit the wire so the failure is
	// reported as an encode error, not a driver error.
	if _, err := bson.Marshal(doc); err != nil {
		return &api.EncodeError{Err: err}
	}

	_, err = tasks.ReplaceOne(ctx, bson.M{"_id": taskID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return err
	}

	b.obs.OnStore(ctx, taskID, state)
	return nil
}

func (b *Backend) GetTaskMeta(ctx context.Context, taskID string) (*api.TaskMeta, error) {
	tasks, _, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	var doc taskDoc
	err = tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		meta := api.PendingMeta(taskID)
		b.obs.OnFetch(ctx, taskID, meta.State)
		return meta, nil
	}
	if err != nil {
		return nil, err
	}

	meta := &api.TaskMeta{
		TaskID:    doc.ID,
		State:     api.State(doc.State),
		Traceback: doc.Traceback,
		DateDone:  doc.DateDone,
		ParentID:  doc.ParentID,
		Children:  doc.Children,
		Name:      doc.Name,
		Worker:    doc.Worker,
		Queue:     doc.Queue,
		Retries:   doc.Retries,
	}
	if meta.Result, err = b.decode(doc.Result); err != nil {
		return nil, err
	}
	if meta.Args, err = b.decode(doc.Args); err != nil {
		return nil, err
	}
	if meta.Kwargs, err = b.decode(doc.Kwargs); err != nil {
		return nil, err
	}

	b.obs.OnFetch(ctx, taskID, meta.State)
	return meta, nil
}

func (b *Backend) Forget(ctx context.Context, taskID string) error {
	tasks, _, err := b.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := tasks.DeleteOne(ctx, bson.M{"_id": taskID}); err != nil {
		return err
	}
	b.obs.OnForget(ctx, taskID)
	return nil
}

func (b *Backend) SaveGroup(ctx context.Context, groupID string, children []string) error {
	_, groups, err := b.connect(ctx)
	if err != nil {
		return err
	}

	doc := groupDoc{
		ID:       groupID,
		Children: children,
		DateDone: time.Now().UTC(),
	}
	_, err = groups.ReplaceOne(ctx, bson.M{"_id": groupID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (b *Backend) RestoreGroup(ctx context.Context, groupID string) (*api.GroupMeta, error) {
	_, groups, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	var doc groupDoc
	err = groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &api.GroupMeta{
		GroupID:  doc.ID,
		Children: doc.Children,
		DateDone: doc.DateDone,
	}, nil
}

func (b *Backend) DeleteGroup(ctx context.Context, groupID string) error {
	_, groups, err := b.connect(ctx)
	if err != nil {
		return err
	}
	_, err = groups.DeleteOne(ctx, bson.M{"_id": groupID})
	return err
}

// Cleanup deletes task and group records whose date_done is older than the
// configured expiry. It is a no-op when expiry is disabled.
func (b *Backend) Cleanup(ctx context.Context) error {
	if !b.cfg.expiryEnabled() {
		return nil
	}
	tasks, groups, err := b.connect(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-b.cfg.Expires)
	filter := bson.M{"date_done": bson.M{"$lt": cutoff}}

	taskRes, err := tasks.DeleteMany(ctx, filter)
	if err != nil {
		b.obs.OnCleanup(ctx, 0, 0, err)
		return err
	}
	groupRes, err := groups.DeleteMany(ctx, filter)
	if err != nil {
		b.obs.OnCleanup(ctx, taskRes.DeletedCount, 0, err)
		return err
	}

	b.obs.OnCleanup(ctx, taskRes.DeletedCount, groupRes.DeletedCount, nil)
	return nil
}

// Close drops the cached collections and disconnects the client, if a
// connection was ever established. A later operation reconnects.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	client := b.client
	b.client = nil
	b.taskColl = nil
	b.groupColl = nil

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}
