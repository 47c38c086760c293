// Package record holds the decoded dump record type and the pre-commit
// normalization applied to every record before it reaches storage.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Field names with special meaning to the ingestion pipeline.
const (
	FieldID        = "id"
	FieldName      = "name"
	FieldNameLower = "name_lower"
	FieldUpdatedAt = "updated_at"

	timestampSuffix = "_updated_at"
)

var (
	// ErrMissingID is returned when a record has no "id" field.
	ErrMissingID = errors.New("record has no id")

	// ErrInvalidID is returned when "id" is not an integral number.
	ErrInvalidID = errors.New("record id is not an integer")
)

// Record is one entry of a dump, keyed by field name.
// Numbers decoded from JSON are kept as json.Number so 64-bit ids survive.
type Record map[string]any

// ID returns the external numeric id the record is upserted by.
func (r Record) ID() (int64, error) {
	v, ok := r[FieldID]
	if !ok || v == nil {
		return 0, ErrMissingID
	}

	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, t.String())
		}
		return integral(f)
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return integral(t)
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidID, v)
	}
}

// Name returns the display name, if present and a string.
func (r Record) Name() (string, bool) {
	s, ok := r[FieldName].(string)
	return s, ok
}

// Int64 returns a numeric field as int64. The second value is false when the
// field is absent or not an integer.
func (r Record) Int64(field string) (int64, bool) {
	switch t := r[field].(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy. Nested lists are copied one level deep so
// lower-casing never writes through to the caller's record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		switch t := v.(type) {
		case []any:
			out[k] = append([]any(nil), t...)
		case []string:
			out[k] = append([]string(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}

func integral(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidID, f)
	}
	return int64(f), nil
}
