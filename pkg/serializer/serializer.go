// Package serializer provides the pluggable result codecs used by the
// Conveyor backends.
//
// A Serializer turns an arbitrary task result into a storable payload and
// back. Payloads are either strings (json, yaml) or byte slices (gob,
// msgpack, bson); the bson serializer is additionally understood natively
// by the MongoDB backend, which stores the raw value inside the metadata
// document instead of a wrapped payload.
//
// All built-in serializers are registered at init time and can be looked
// up by name:
//
//	s, err := serializer.Get(serializer.NameJSON)
package serializer

import (
	"fmt"
	"sync"
)

// Names of the built-in serializers.
const (
	NameJSON    = "json"
	NameYAML    = "yaml"
	NameMsgpack = "msgpack"
	NameGob     = "gob"
	NameBSON    = "bson"
)

// Serializer encodes task results for storage and decodes stored payloads.
//
// Encode returns a string or []byte payload. Decode accepts whatever the
// storage layer hands back (string, []byte, or a driver binary wrapper)
// and must return a value equal to the one originally encoded.
type Serializer interface {
	Name() string
	Encode(v any) (any, error)
	Decode(payload any) (any, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Serializer)
)

// Register makes a serializer available to Get under its Name.
// Registering a name twice replaces the earlier serializer.
func Register(s Serializer) {
	mu.Lock()
	defer mu.Unlock()
	registry[s.Name()] = s
}

// Get returns the serializer registered under name.
func Get(name string) (Serializer, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
	return s, nil
}

// MustGet is Get for names known to be registered; it panics otherwise.
// Intended for package-level defaults, not user input.
func MustGet(name string) Serializer {
	s, err := Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

func init() {
	Register(JSONSerializer{})
	Register(YAMLSerializer{})
	Register(MsgpackSerializer{})
	Register(GobSerializer{})
	Register(BSONSerializer{})
}
