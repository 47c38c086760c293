package record

// normalize.go implements the pre-commit transformation every stored record
// goes through. Rules run in a fixed order and each one only touches fields
// that are present:
//
//  1. updated_at and every top-level *_updated_at field: seconds -> milliseconds
//  2. name_lower is copied from name verbatim
//  3. the definition's lower-case fields are case-folded
//
// The store calls Apply exactly once per insert or full-document replace.
// Applying it twice multiplies timestamps twice; nothing else may call it.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidTimestamp is returned when a timestamp field is not numeric.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// millisPerSecond converts dump timestamps (epoch seconds) to storage units.
const millisPerSecond = 1000

// Normalizer applies the commit-time rules for one resource kind.
type Normalizer struct {
	// LowerFields are case-folded on commit. Values may be strings or
	// lists of strings; other types are left alone.
	LowerFields []string
}

// Apply returns the record that is actually committed. The input is not
// modified.
func (n Normalizer) Apply(raw Record) (Record, error) {
	rec := raw.Clone()

	for field, v := range rec {
		if !isTimestampField(field) {
			continue
		}
		ms, changed, err := toMillis(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if changed {
			rec[field] = ms
		}
	}

	// name_lower is derived only; a caller-supplied value never survives.
	// It is a straight copy of name, not a case-fold.
	delete(rec, FieldNameLower)
	if name, ok := rec[FieldName]; ok && name != nil {
		rec[FieldNameLower] = name
	}

	for _, field := range n.LowerFields {
		if v, ok := rec[field]; ok {
			rec[field] = lower(v)
		}
	}

	return rec, nil
}

func isTimestampField(field string) bool {
	return field == FieldUpdatedAt || strings.HasSuffix(field, timestampSuffix)
}

// toMillis multiplies a truthy numeric timestamp by 1000. Zero, empty and
// null values are reported unchanged so they are never coerced.
func toMillis(v any) (any, bool, error) {
	switch t := v.(type) {
	case nil:
		return v, false, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i == 0 {
				return v, false, nil
			}
			return scaleInt(i)
		}
		f, err := t.Float64()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %q", ErrInvalidTimestamp, t.String())
		}
		if f == 0 {
			return v, false, nil
		}
		return f * millisPerSecond, true, nil
	case int64:
		if t == 0 {
			return v, false, nil
		}
		return scaleInt(t)
	case int:
		if t == 0 {
			return v, false, nil
		}
		return scaleInt(int64(t))
	case float64:
		if t == 0 {
			return v, false, nil
		}
		return t * millisPerSecond, true, nil
	case string:
		if t == "" {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidTimestamp, t)
	case bool:
		if !t {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("%w: boolean", ErrInvalidTimestamp)
	default:
		return nil, false, fmt.Errorf("%w: %T", ErrInvalidTimestamp, v)
	}
}

// scaleInt rejects seconds whose millisecond value does not fit in int64.
func scaleInt(i int64) (any, bool, error) {
	if i > math.MaxInt64/millisPerSecond || i < math.MinInt64/millisPerSecond {
		return nil, false, fmt.Errorf("%w: %d out of range", ErrInvalidTimestamp, i)
	}
	return i * millisPerSecond, true, nil
}

func lower(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case []string:
		for i := range t {
			t[i] = strings.ToLower(t[i])
		}
		return t
	case []any:
		for i, e := range t {
			if s, ok := e.(string); ok {
				t[i] = strings.ToLower(s)
			}
		}
		return t
	default:
		return v
	}
}
