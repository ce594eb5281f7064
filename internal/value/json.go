package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSON marshals a model value to compact JSON. Object keys are emitted
// in sorted order and HTML characters are not escaped, so canonical compact
// inputs survive a decode/encode round trip byte for byte.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeJSON unmarshals JSON into the model: objects become map[string]any,
// arrays []any, numbers float64.
func DecodeJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
