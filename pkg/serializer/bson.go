package serializer

import (
	"go.mongodb.org/mongo-driver/bson"
)

// BSONSerializer encodes results as BSON.
//
// The MongoDB backend treats this serializer specially: the value is stored
// natively inside the metadata document, so numbers stay numbers and maps
// stay subdocuments. Any other backend receives a marshaled single-field
// wrapper document as the byte payload.
type BSONSerializer struct{}

// bsonWrapper carries a bare value, since BSON can only encode documents
// at the top level.
type bsonWrapper struct {
	V any `bson:"v"`
}

func (BSONSerializer) Name() string { return NameBSON }

func (BSONSerializer) Encode(v any) (any, error) {
	b, err := bson.Marshal(bsonWrapper{V: v})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (BSONSerializer) Decode(payload any) (any, error) {
	b, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	var w bsonWrapper
	if err := bson.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return w.V, nil
}
