package serializer

import "encoding/json"

// JSONSerializer encodes results as JSON strings.
//
// Decoded composites come back as map[string]any and []any, numbers as
// float64; this matches encoding/json's generic decoding.
type JSONSerializer struct{}

func (JSONSerializer) Name() string { return NameJSON }

func (JSONSerializer) Encode(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (JSONSerializer) Decode(payload any) (any, error) {
	b, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
