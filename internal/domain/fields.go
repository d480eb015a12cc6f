package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Fields is the raw, loosely typed payload of a stored document.
// All coercion from Fields into typed records goes through the helpers
// below, so malformed input is defaulted at the boundary and never raised.
type Fields map[string]any

// Get returns the raw value for key, or nil.
func (f Fields) Get(key string) any {
	if f == nil {
		return nil
	}
	return f[key]
}

// First returns the first value among keys that is present and not nil.
func (f Fields) First(keys ...string) any {
	for _, k := range keys {
		if v := f.Get(k); v != nil {
			return v
		}
	}
	return nil
}

// Truthy returns the first value among keys that is "truthy": not nil,
// not false, not zero, not the empty string.
func (f Fields) Truthy(keys ...string) any {
	for _, k := range keys {
		if v := f.Get(k); truthy(v) {
			return v
		}
	}
	return nil
}

// String returns the value for key if it is a string, else "".
func (f Fields) String(key string) string {
	s, _ := f.Get(key).(string)
	return s
}

// Bool returns true only when key holds the boolean true.
func (f Fields) Bool(key string) bool {
	b, _ := f.Get(key).(bool)
	return b
}

// Strings returns the non-empty string elements of an array field.
func (f Fields) Strings(key string) []string {
	var out []string
	switch vs := f.Get(key).(type) {
	case []string:
		for _, s := range vs {
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, v := range vs {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Number coerces the value for key; see CoerceNumber.
func (f Fields) Number(key string) (float64, bool) {
	return CoerceNumber(f.Get(key), -1)
}

// Time coerces the value for key; see CoerceTime.
func (f Fields) Time(key string) *time.Time {
	return CoerceTime(f.Get(key))
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case json.Number:
		return x != "" && x != "0"
	}
	return true
}

// ─── Coercion ───────────────────────────────────────────────────────────────

// SanitizeString returns the trimmed string truncated to maxLen characters.
// ok is false when v is not a string or is blank.
func SanitizeString(v any, maxLen int) (string, bool) {
	s, isStr := v.(string)
	if !isStr {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	return s, true
}

// SanitizeNullable is SanitizeString returning nil instead of ok=false.
func SanitizeNullable(v any, maxLen int) *string {
	s, ok := SanitizeString(v, maxLen)
	if !ok {
		return nil
	}
	return &s
}

// CoerceNumber converts v to a finite number rounded to precision decimal
// places (negative precision skips rounding). Numeric strings are parsed,
// booleans count as 0/1, the empty string is 0. ok is false for anything
// that is not a finite number.
func CoerceNumber(v any, precision int) (float64, bool) {
	var num float64
	switch x := v.(type) {
	case float64:
		num = x
	case float32:
		num = float64(x)
	case int:
		num = float64(x)
	case int32:
		num = float64(x)
	case int64:
		num = float64(x)
	case uint:
		num = float64(x)
	case uint32:
		num = float64(x)
	case uint64:
		num = float64(x)
	case bool:
		if x {
			num = 1
		}
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		num = f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		num = f
	default:
		return 0, false
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	if precision >= 0 {
		factor := math.Pow(10, float64(precision))
		num = math.Floor(num*factor+0.5) / factor
	}
	return num, true
}

// NumberOr coerces v, falling back when it is not a finite number.
func NumberOr(v any, fallback float64, precision int) float64 {
	if n, ok := CoerceNumber(v, precision); ok {
		return n
	}
	return fallback
}

// NullableNumber coerces v, returning nil when it is not a finite number.
func NullableNumber(v any, precision int) *float64 {
	n, ok := CoerceNumber(v, precision)
	if !ok {
		return nil
	}
	return &n
}

// CoerceTime accepts time.Time, *time.Time, RFC 3339 strings, epoch
// milliseconds, and {"_seconds","_nanoseconds"} or {"seconds","nanos"}
// maps. Anything else yields nil.
func CoerceTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil
		}
		t = *x
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		t = parsed
	case map[string]any:
		return timeFromMap(x)
	case Fields:
		return timeFromMap(x)
	default:
		ms, ok := CoerceNumber(v, -1)
		if !ok {
			return nil
		}
		if _, isBool := v.(bool); isBool {
			return nil
		}
		t = time.UnixMilli(int64(ms))
	}
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func timeFromMap(m map[string]any) *time.Time {
	secs, ok := CoerceNumber(Fields(m).First("_seconds", "seconds"), -1)
	if !ok {
		return nil
	}
	nanos, _ := CoerceNumber(Fields(m).First("_nanoseconds", "nanos", "nanoseconds"), -1)
	t := time.Unix(int64(secs), int64(nanos)).UTC()
	return &t
}
