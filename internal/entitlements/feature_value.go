package entitlements

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Feature keys with behavior attached to them. Other keys flow through the
// resolver untouched.
const (
	FeatureAIPlan      = "AI_PLAN"
	FeatureMaxPlans    = "MAX_PLANS"
	FeatureAIGenLimit  = "AI_GEN_LIMIT"
	FeatureMaxPlanDays = "MAX_PLAN_DAYS"
)

// FeatureKind tags the decoded shape of a stored feature payload.
type FeatureKind string

const (
	FeatureKindBool    FeatureKind = "bool"
	FeatureKindLimit   FeatureKind = "limit"
	FeatureKindUnknown FeatureKind = "unknown"
)

// FeatureValue is the decoded form of a ProductFeature payload. Stored
// payloads are operator-entered JSON and arrive in several historical shapes:
// raw booleans, {"enabled":bool}, {"limit":N}, {"value":N,"enabled":bool},
// and the string sentinel "Infinity" for unbounded limits. Decoding never
// fails; shapes we cannot interpret become FeatureKindUnknown so callers fall
// back to safe defaults.
type FeatureValue struct {
	Kind      FeatureKind `json:"kind"`
	Enabled   bool        `json:"enabled"`
	Limit     float64     `json:"limit,omitempty"`
	Unbounded bool        `json:"unbounded,omitempty"`
}

// BoolFeature builds an enabled/disabled toggle value.
func BoolFeature(enabled bool) FeatureValue {
	return FeatureValue{Kind: FeatureKindBool, Enabled: enabled}
}

// LimitFeature builds a bounded numeric limit value.
func LimitFeature(limit float64) FeatureValue {
	return FeatureValue{Kind: FeatureKindLimit, Enabled: true, Limit: limit}
}

// UnboundedFeature builds a limit value with no ceiling.
func UnboundedFeature() FeatureValue {
	return FeatureValue{Kind: FeatureKindLimit, Enabled: true, Unbounded: true}
}

type rawFeaturePayload struct {
	Enabled *bool            `json:"enabled"`
	Value   *json.RawMessage `json:"value"`
	Limit   *json.RawMessage `json:"limit"`
}

// DecodeFeatureValue parses a stored payload into its tagged variant.
// A nil or empty payload means plain enabled, matching how toggles were
// historically stored.
func DecodeFeatureValue(raw json.RawMessage) FeatureValue {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return BoolFeature(true)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return BoolFeature(b)
	}

	var payload rawFeaturePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return FeatureValue{Kind: FeatureKindUnknown}
	}

	if limit, ok := decodeNumericField(payload.Limit); ok {
		return limitOrUnbounded(limit, payload.Enabled)
	}
	if limit, ok := decodeNumericField(payload.Value); ok {
		return limitOrUnbounded(limit, payload.Enabled)
	}
	if payload.Enabled != nil {
		return BoolFeature(*payload.Enabled)
	}
	return FeatureValue{Kind: FeatureKindUnknown}
}

func limitOrUnbounded(limit float64, enabled *bool) FeatureValue {
	v := FeatureValue{Kind: FeatureKindLimit, Enabled: true, Limit: limit}
	if enabled != nil {
		v.Enabled = *enabled
	}
	if math.IsInf(limit, 1) {
		v.Limit = 0
		v.Unbounded = true
	}
	return v
}

// decodeNumericField accepts numbers, numeric strings, and the historical
// "Infinity"/"infinite" sentinels.
func decodeNumericField(raw *json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(*raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(*raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "infinity", "inf", "infinite", "unlimited":
			return math.Inf(1), true
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
