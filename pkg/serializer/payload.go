package serializer

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// payloadBytes normalizes a stored payload to a byte slice. Storage layers
// hand back different shapes for the same logical payload: []byte from SQL
// blobs and Redis, string from document fields, primitive.Binary from BSON
// documents.
func payloadBytes(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case primitive.Binary:
		return p.Data, nil
	default:
		return nil, fmt.Errorf("serializer: unsupported payload type %T", payload)
	}
}
