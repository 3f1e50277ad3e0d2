package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// SQLiteBackend is a result backend backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// The caller owns the *sql.DB; Close does not close it.
type SQLiteBackend struct {
	db *sql.DB

	ser      serializer.Serializer
	expires  time.Duration
	extended bool
	obs      api.Observer
}

// Ensure SQLiteBackend implements the interface.
var _ api.Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend initializes the required schema in the given database
// and returns a new SQLiteBackend.
func NewSQLiteBackend(db *sql.DB, opts Options) (*SQLiteBackend, error) {
	ser, err := opts.serializer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrNotConfigured, err)
	}

	s := &SQLiteBackend{
		db:       db,
		ser:      ser,
		expires:  opts.Expires,
		extended: opts.ResultExtended,
		obs:      opts.observer(),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_meta (
			task_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			result BLOB,
			traceback TEXT,
			date_done INTEGER NOT NULL,
			parent_id TEXT,
			children TEXT,
			name TEXT,
			args BLOB,
			kwargs BLOB,
			worker TEXT,
			queue TEXT,
			retries INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS group_meta (
			group_id TEXT PRIMARY KEY,
			children TEXT,
			date_done INTEGER NOT NULL
		);`,
	)
	return err
}

// payloadBlob converts a serializer payload (string or []byte) to a blob.
func payloadBlob(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

func (s *SQLiteBackend) StoreResult(ctx context.Context, taskID string, result any, state api.State, opts ...api.StoreOption) error {
	o := api.NewStoreOptions(opts...)

	payload, err := s.ser.Encode(result)
	if err != nil {
		return &api.EncodeError{Err: err}
	}
	blob, err := payloadBlob(payload)
	if err != nil {
		return &api.EncodeError{Err: err}
	}

	var (
		parentID string
		children []byte
		name     string
		args     []byte
		kwargs   []byte
		worker   string
		queue    string
		retries  int
	)
	if req := o.Request; req != nil {
		parentID = req.ParentID
		if len(req.Children) > 0 {
			children, err = json.Marshal(req.Children)
			if err != nil {
				return &api.EncodeError{Err: err}
			}
		}
		if s.extended {
			name = req.TaskName
			worker = req.Worker
			queue = req.Queue
			retries = req.Retries
			if req.Args != nil {
				if args, err = s.encodeBlob(req.Args); err != nil {
					return err
				}
			}
			if req.Kwargs != nil {
				if kwargs, err = s.encodeBlob(req.Kwargs); err != nil {
					return err
				}
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_meta (task_id, state, result, traceback, date_done, parent_id, children, name, args, kwargs, worker, queue, retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			state = excluded.state,
			result = excluded.result,
			traceback = excluded.traceback,
			date_done = excluded.date_done,
			parent_id = excluded.parent_id,
			children = excluded.children,
			name = excluded.name,
			args = excluded.args,
			kwargs = excluded.kwargs,
			worker = excluded.worker,
			queue = excluded.queue,
			retries = excluded.retries`,
		taskID,
		string(state),
		blob,
		o.Traceback,
		time.Now().UTC().UnixNano(),
		parentID,
		nullableText(children),
		name,
		args,
		kwargs,
		worker,
		queue,
		retries,
	)
	if err != nil {
		return err
	}

	s.obs.OnStore(ctx, taskID, state)
	return nil
}

func (s *SQLiteBackend) encodeBlob(v any) ([]byte, error) {
	payload, err := s.ser.Encode(v)
	if err != nil {
		return nil, &api.EncodeError{Err: err}
	}
	blob, err := payloadBlob(payload)
	if err != nil {
		return nil, &api.EncodeError{Err: err}
	}
	return blob, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *SQLiteBackend) GetTaskMeta(ctx context.Context, taskID string) (*api.TaskMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, state, result, traceback, date_done, parent_id, children, name, args, kwargs, worker, queue, retries
		FROM task_meta
		WHERE task_id = ?`,
		taskID,
	)

	var (
		meta      api.TaskMeta
		stateStr  string
		blob      []byte
		traceback sql.NullString
		dateDone  int64
		parentID  sql.NullString
		children  sql.NullString
		name      sql.NullString
		args      []byte
		kwargs    []byte
		worker    sql.NullString
		queue     sql.NullString
		retries   int
	)

	err := row.Scan(&meta.TaskID, &stateStr, &blob, &traceback, &dateDone,
		&parentID, &children, &name, &args, &kwargs, &worker, &queue, &retries)
	if errors.Is(err, sql.ErrNoRows) {
		meta := api.PendingMeta(taskID)
		s.obs.OnFetch(ctx, taskID, meta.State)
		return meta, nil
	}
	if err != nil {
		return nil, err
	}

	meta.State = api.State(stateStr)
	meta.Traceback = traceback.String
	meta.DateDone = time.Unix(0, dateDone).UTC()
	meta.ParentID = parentID.String
	meta.Name = name.String
	meta.Worker = worker.String
	meta.Queue = queue.String
	meta.Retries = retries

	if len(blob) > 0 {
		if meta.Result, err = s.ser.Decode(blob); err != nil {
			return nil, err
		}
	}
	if children.Valid && children.String != "" {
		if err := json.Unmarshal([]byte(children.String), &meta.Children); err != nil {
			return nil, err
		}
	}
	if len(args) > 0 {
		if meta.Args, err = s.ser.Decode(args); err != nil {
			return nil, err
		}
	}
	if len(kwargs) > 0 {
		if meta.Kwargs, err = s.ser.Decode(kwargs); err != nil {
			return nil, err
		}
	}

	s.obs.OnFetch(ctx, taskID, meta.State)
	return &meta, nil
}

func (s *SQLiteBackend) Forget(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_meta WHERE task_id = ?`, taskID)
	if err != nil {
		return err
	}
	s.obs.OnForget(ctx, taskID)
	return nil
}

func (s *SQLiteBackend) SaveGroup(ctx context.Context, groupID string, children []string) error {
	encoded, err := json.Marshal(children)
	if err != nil {
		return &api.EncodeError{Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_meta (group_id, children, date_done)
		VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			children = excluded.children,
			date_done = excluded.date_done`,
		groupID,
		string(encoded),
		time.Now().UTC().UnixNano(),
	)
	return err
}

func (s *SQLiteBackend) RestoreGroup(ctx context.Context, groupID string) (*api.GroupMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT group_id, children, date_done
		FROM group_meta
		WHERE group_id = ?`,
		groupID,
	)

	var (
		gm       api.GroupMeta
		children sql.NullString
		dateDone int64
	)
	err := row.Scan(&gm.GroupID, &children, &dateDone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gm.DateDone = time.Unix(0, dateDone).UTC()
	if children.Valid && children.String != "" {
		if err := json.Unmarshal([]byte(children.String), &gm.Children); err != nil {
			return nil, err
		}
	}
	return &gm, nil
}

func (s *SQLiteBackend) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM group_meta WHERE group_id = ?`, groupID)
	return err
}

func (s *SQLiteBackend) Cleanup(ctx context.Context) error {
	if s.expires <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.expires).UnixNano()

	var tasks, groups int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM task_meta WHERE date_done < ?`, cutoff)
	if err != nil {
		s.obs.OnCleanup(ctx, 0, 0, err)
		return err
	}
	tasks, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM group_meta WHERE date_done < ?`, cutoff)
	if err != nil {
		s.obs.OnCleanup(ctx, tasks, 0, err)
		return err
	}
	groups, _ = res.RowsAffected()

	s.obs.OnCleanup(ctx, tasks, groups, nil)
	return nil
}

// Close is a no-op; the caller owns the *sql.DB.
func (s *SQLiteBackend) Close(ctx context.Context) error {
	return nil
}
