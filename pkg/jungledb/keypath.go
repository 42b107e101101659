package jungledb

import (
	"fmt"
	"reflect"
	"strings"
)

// KeyPath is a single attribute name or an ordered sequence of attribute
// names used to extract a secondary key from a value. A KeyPath of length
// 1 is the common case; longer paths walk nested maps/structs.
type KeyPath []string

// NewKeyPath builds a KeyPath from one or more attribute names.
func NewKeyPath(attrs ...string) KeyPath {
	p := make(KeyPath, len(attrs))
	copy(p, attrs)
	return p
}

// absent is the sentinel returned by Extract when any intermediate
// attribute along the path is missing. This is never an error: the entry
// is simply skipped for indexing purposes.
type absentType struct{}

var absent = absentType{}

func isAbsent(v any) bool {
	_, ok := v.(absentType)
	return ok
}

// String renders the path as dot-separated attribute names.
func (p KeyPath) String() string { return strings.Join(p, ".") }

// Extract walks value along the key path and returns the secondary key it
// resolves to, or absent if any attribute in the path is missing.
//
// value may be a map[string]any (the common JSON-shaped record), a struct
// (via reflection, matching on exported field name or a `jungledb:"name"`
// tag), or a pointer to either.
func (p KeyPath) Extract(value any) any {
	cur := value
	for _, attr := range p {
		next, ok := fieldValue(cur, attr)
		if !ok {
			return absent
		}
		cur = next
	}
	return cur
}

func fieldValue(value any, attr string) (any, bool) {
	if value == nil {
		return nil, false
	}
	if m, ok := value.(map[string]any); ok {
		v, ok := m[attr]
		return v, ok
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		mv := rv.MapIndex(reflect.ValueOf(attr))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			name := f.Tag.Get("jungledb")
			if name == "" {
				name = f.Name
			}
			if name == attr {
				return rv.Field(i).Interface(), true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// isMultiEntryCollection reports whether v is an ordered collection whose
// elements should each be indexed independently under a multiEntry index,
// and returns its elements if so.
func isMultiEntryCollection(v any) ([]any, bool) {
	if isAbsent(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}

// compare provides a total order over primary keys (always strings) and
// over secondary keys extracted by a KeyPath, which may be strings, any
// Go numeric type, bools, or time.Time-like Stringers. Mixed,
// incomparable types fall back to comparing their string forms, which is
// still a total order even if not a meaningful one.
func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return stringCompare(av, bv)
		}
	case int:
		return numericCompare(float64(av), b)
	case int32:
		return numericCompare(float64(av), b)
	case int64:
		return numericCompare(float64(av), b)
	case float32:
		return numericCompare(float64(av), b)
	case float64:
		return numericCompare(av, b)
	case bool:
		if bv, ok := b.(bool); ok {
			return boolCompare(av, bv)
		}
	}
	return stringCompare(fmt.Sprint(a), fmt.Sprint(b))
}

func numericCompare(a float64, b any) int {
	var bf float64
	switch bv := b.(type) {
	case int:
		bf = float64(bv)
	case int32:
		bf = float64(bv)
	case int64:
		bf = float64(bv)
	case float32:
		bf = float64(bv)
	case float64:
		bf = bv
	default:
		return stringCompare(fmt.Sprint(a), fmt.Sprint(b))
	}
	switch {
	case a < bf:
		return -1
	case a > bf:
		return 1
	default:
		return 0
	}
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
