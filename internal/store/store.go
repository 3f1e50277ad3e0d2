// Package store contains the result backends that ship with the core
// module: a goroutine-safe in-memory backend and a SQLite backend.
// Network-backed implementations (MongoDB, Redis) live in their own
// packages.
package store

import (
	"time"

	"github.com/go-conveyor/conveyor/pkg/api"
	"github.com/go-conveyor/conveyor/pkg/serializer"
)

// Options configures the core backends.
type Options struct {
	// Serializer is the name of a registered serializer.
	// Empty selects "json".
	Serializer string

	// Expires bounds the lifetime of stored records; Cleanup removes
	// records older than this. Zero disables cleanup entirely.
	Expires time.Duration

	// ResultExtended persists the extended task fields
	// (name/args/kwargs/worker/queue/retries) from the request.
	ResultExtended bool

	// Observer receives operation callbacks. Nil means none.
	Observer api.Observer
}

func (o Options) serializer() (serializer.Serializer, error) {
	name := o.Serializer
	if name == "" {
		name = serializer.NameJSON
	}
	return serializer.Get(name)
}

func (o Options) observer() api.Observer {
	if o.Observer == nil {
		return api.NoopObserver{}
	}
	return o.Observer
}
