package domain

import (
	"fmt"
	"time"
)

// Record is a single persisted object, keyed by field name. The "id" field
// holds the record's UUID once it has been stored.
type Record map[string]any

// ID returns the record's UUID, or "" if it has not been stored yet.
func (r Record) ID() string {
	return r.String("id")
}

// String returns a field as a string, or "" if absent or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int returns a field as an int64. YAML decoding and sqlite scanning produce
// different integer widths, so all of them normalize here.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Bool returns a field as a bool. Integer 0/1 counts, since sqlite has no
// native boolean type.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

// Map returns a field as a nested map, or nil.
func (r Record) Map(key string) map[string]any {
	if v, ok := r[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Time returns a timestamp field, if present.
func (r Record) Time(key string) (time.Time, bool) {
	switch v := r[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ScalarEqual compares two field values loosely: numeric types compare by
// value regardless of width, everything else by string rendering. Query
// matching and check evaluation both need this because YAML, JSON and sqlite
// round-trip scalars through different Go types.
func ScalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
