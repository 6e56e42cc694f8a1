// Package sparse strips meaningless values from loosely-typed records.
//
// A value is empty when it is nil, a zero-length string, a zero-length slice
// or array, or a zero-length map. Emptiness is applied recursively: a map
// whose every entry is empty is itself empty, and a slice whose elements are
// all empty collapses to nothing. Numbers, booleans and times are never
// empty, so 0, false and the zero time survive compaction.
//
// The sparse form of a record is what the merge engine layers and what every
// store persists, which lets "absent" and "present but blank" behave the same.
package sparse

import (
	"reflect"
)

// Compact returns a new map holding only the non-empty fields of record,
// with nested maps and slices compacted the same way. Typed containers
// ([]string, map[string]int, ...) come back as []any and map[string]any.
// Compact never fails and never mutates its input; a nil or fully empty
// record yields an empty, non-nil map.
func Compact(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if cv, ok := Value(v); ok {
			out[k] = cv
		}
	}
	return out
}

// Value compacts a single value. The boolean is false when the value is
// empty and should be dropped by the caller.
func Value(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return t, t != ""
	case map[string]any:
		c := Compact(t)
		return c, len(c) > 0
	case []any:
		c := compactSlice(t)
		return c, len(c) > 0
	case []string:
		c := make([]any, 0, len(t))
		for _, s := range t {
			if s != "" {
				c = append(c, s)
			}
		}
		return c, len(c) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return v, true
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, false
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// raw bytes are a scalar payload, not a collection of fields
			return v, rv.Len() > 0
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		c := compactSlice(items)
		return c, len(c) > 0
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v, !rv.IsNil() && rv.Len() > 0
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		c := Compact(m)
		return c, len(c) > 0
	}

	return v, true
}

// IsEmpty reports whether v would be dropped by Compact.
func IsEmpty(v any) bool {
	_, ok := Value(v)
	return !ok
}

func compactSlice(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if cv, ok := Value(item); ok {
			out = append(out, cv)
		}
	}
	return out
}
