package domain

import (
	"encoding/json"
	"fmt"
)

// Clamp01 clamps x to [0, 1]. Confidence and salience values are always
// stored clamped.
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// AsNumber reports whether v is a numeric value and returns it as float64.
// Booleans are not numbers.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ValidationError reports a value that does not match its declared type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ValidateValue checks v against the declared value type. Claim and evidence
// values must be one of the closed semantic kinds; the open payload maps in
// the artifact layer are deliberately exempt.
func ValidateValue(t ValueType, v any) error {
	switch t {
	case ValueBool:
		if _, ok := v.(bool); !ok {
			return &ValidationError{Field: "value", Reason: fmt.Sprintf("expected bool, got %T", v)}
		}
	case ValueNumber:
		if _, ok := AsNumber(v); !ok {
			return &ValidationError{Field: "value", Reason: fmt.Sprintf("expected number, got %T", v)}
		}
	case ValueText:
		if _, ok := v.(string); !ok {
			return &ValidationError{Field: "value", Reason: fmt.Sprintf("expected text, got %T", v)}
		}
	case ValueJSON:
		if _, err := json.Marshal(v); err != nil {
			return &ValidationError{Field: "value", Reason: "not JSON-serializable"}
		}
	default:
		return &ValidationError{Field: "value_type", Reason: fmt.Sprintf("unknown value type %q", t)}
	}
	return nil
}

// CanonicalString returns a stable string form of a value, used for majority
// voting and structured comparison. encoding/json sorts map keys, so the
// form is deterministic across runs.
func CanonicalString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
