// Package value defines the dynamic value model shared by the script engine,
// the store, and the front-ends. Values are plain Go dynamic types: nil, bool,
// float64, string, []any (array) and map[string]any (object). Everything that
// crosses a boundary (store blobs, JSON, script results) is expressed in this
// model rather than in interpreter-specific types.
package value

import (
	"strconv"
)

// Type hints persisted in the store's type column and shown by list output.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
)

// TypeHint returns the type name for a model value. Values outside the model
// report "null".
func TypeHint(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case string:
		return TypeString
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return TypeNull
	}
}

// Display renders a value for text output: nil renders empty, numbers drop a
// trailing ".0", strings render raw, arrays and objects render as JSON.
func Display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	case []any, map[string]any:
		data, err := EncodeJSON(t)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Size reports the logical size of a value in bytes. Containers sum their
// elements; object keys count toward the total.
func Size(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 8
	case string:
		return len(t)
	case []any:
		n := 0
		for _, e := range t {
			n += Size(e)
		}
		return n
	case map[string]any:
		n := 0
		for k, e := range t {
			n += len(k) + Size(e)
		}
		return n
	default:
		return 0
	}
}

// Normalize coerces a decoded value into the model: integer types widen to
// float64, nested containers are normalized recursively. Values already in the
// model pass through unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return t
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []byte:
		return string(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = Normalize(e)
		}
		return out
	default:
		return nil
	}
}
