package entitlements

import (
	"encoding/json"
	"testing"
)

func TestDecodeFeatureValue_NumericStrings(t *testing.T) {
	// Operator-entered payloads sometimes quote numbers; they must decode
	// the same as bare numerics.
	cases := []struct {
		name  string
		raw   string
		limit float64
	}{
		{"quoted limit", `{"limit":"5"}`, 5},
		{"quoted value", `{"value":"12.5"}`, 12.5},
		{"padded quoted limit", `{"limit":" 7 "}`, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := DecodeFeatureValue(json.RawMessage(tc.raw))
			if v.Kind != FeatureKindLimit || v.Unbounded {
				t.Fatalf("expected bounded limit, got %+v", v)
			}
			if v.Limit != tc.limit {
				t.Fatalf("expected limit %v, got %v", tc.limit, v.Limit)
			}
		})
	}

	t.Run("non-numeric string stays unknown", func(t *testing.T) {
		v := DecodeFeatureValue(json.RawMessage(`{"limit":"soon"}`))
		if v.Kind != FeatureKindUnknown {
			t.Fatalf("expected unknown, got %+v", v)
		}
	})

	t.Run("sentinel still unbounded", func(t *testing.T) {
		v := DecodeFeatureValue(json.RawMessage(`{"limit":"Infinity"}`))
		if v.Kind != FeatureKindLimit || !v.Unbounded {
			t.Fatalf("expected unbounded, got %+v", v)
		}
	})
}
