package store

import (
	"encoding/json"

	"github.com/trackdeck/trackdeck/internal/debug"
)

// marshalList serializes a list column, falling back to the empty-array
// literal on failure so callers always read well-formed JSON.
func marshalList[T any](v []T) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		debug.Logf("store: list serialization failed: %v", err)
		return "[]"
	}
	return string(b)
}

// marshalMap serializes a map column with the empty-object fallback.
func marshalMap[K comparable, V any](v map[K]V) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		debug.Logf("store: map serialization failed: %v", err)
		return "{}"
	}
	return string(b)
}

// unmarshalList decodes a list column. Malformed stored values decode to
// the zero slice rather than an error; the fallback discipline on the write
// side makes that unreachable in practice.
func unmarshalList[T any](raw string) []T {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		debug.Logf("store: list deserialization failed: %v", err)
		return nil
	}
	return out
}
