package testutil

import (
	"encoding/json"
	"testing"
)

// volatileFields never take part in golden comparisons.
var volatileFields = map[string]bool{
	"timestamp":   true,
	"generatedAt": true,
	"savedAt":     true,
	"duration":    true,
	"elapsed":     true,
	"requestId":   true,
	"generation":  true,
}

// Normalize round-trips data through JSON and drops volatile fields.
func Normalize(t *testing.T, data any) any {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal data for normalization: %v", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Failed to unmarshal data for normalization: %v", err)
	}
	return stripVolatile(generic)
}

func stripVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if volatileFields[k] {
				continue
			}
			out[k] = stripVolatile(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stripVolatile(item)
		}
		return out
	default:
		return v
	}
}

// MarshalNormalized normalizes data and marshals it to stable JSON bytes:
// sorted keys, 2-space indentation and a trailing newline.
func MarshalNormalized(t *testing.T, data any) []byte {
	t.Helper()

	out, err := json.MarshalIndent(Normalize(t, data), "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal normalized data: %v", err)
	}
	return append(out, '\n')
}
