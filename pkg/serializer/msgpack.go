package serializer

import "github.com/vmihailenco/msgpack/v5"

// MsgpackSerializer encodes results as MessagePack byte payloads.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Name() string { return NameMsgpack }

func (MsgpackSerializer) Encode(v any) (any, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (MsgpackSerializer) Decode(payload any) (any, error) {
	b, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
