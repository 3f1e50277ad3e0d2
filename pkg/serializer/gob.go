package serializer

import (
	"bytes"
	"encoding/gob"
)

// GobSerializer encodes results with encoding/gob as binary payloads.
//
// Unlike the text serializers it round-trips arbitrary Go types, provided
// they have been registered first:
//
//	serializer.RegisterType(MyResult{})
//
// This is the serializer of choice when producers and consumers are both
// Go programs and results carry domain structs.
type GobSerializer struct{}

// RegisterType records a concrete type for gob transport, like gob.Register.
func RegisterType(v any) {
	gob.Register(v)
}

func (GobSerializer) Name() string { return NameGob }

func (GobSerializer) Encode(v any) (any, error) {
	if v == nil {
		return []byte(nil), nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Important: encode as interface{} so we can safely decode into interface{}.
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Decode(payload any) (any, error) {
	b, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
