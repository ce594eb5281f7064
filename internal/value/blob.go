package value

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeBlob serializes a model value to the binary form persisted in store
// blobs.
func EncodeBlob(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode blob: %w", err)
	}
	return data, nil
}

// DecodeBlob deserializes a store blob back into a model value. Integer-typed
// wire values widen to float64 so a blob decodes to the same shape it was
// encoded from.
func DecodeBlob(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	return Normalize(v), nil
}
