// Package normalize is the single adaptation point between the provider
// module's map-like response shapes and plain nested structures.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// ErrMalformed is returned when a response cannot be decoded into the
// requested shape.
var ErrMalformed = errors.New("malformed response")

// Normalize walks v and converts every map into map[string]any and every
// slice or array into []any. Primitives pass through unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return nil
		}
		return Normalize(decoded)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte stays binary.
			return v
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return v
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(k.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(k.Interface())
}

// ToSlice returns v as a list. Lists pass through; objects (lua tables keyed
// 1..n) become their values ordered by key; empty objects and anything else
// become an empty list.
func ToSlice(v any) []any {
	switch t := Normalize(v).(type) {
	case []any:
		return t
	case map[string]any:
		if len(t) == 0 {
			return []any{}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, t[k])
		}
		return out
	}
	return []any{}
}

// lessKey orders numeric keys numerically and everything else lexically,
// numbers first.
func lessKey(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// Unwrap returns the "returns" member of the provider's envelope when present,
// otherwise v itself.
func Unwrap(v any) any {
	n := Normalize(v)
	if m, ok := n.(map[string]any); ok {
		if inner, ok := m["returns"]; ok && inner != nil {
			return inner
		}
	}
	return n
}

// Decode normalizes v and decodes it into out.
func Decode(v any, out any) error {
	b, err := json.Marshal(Normalize(v))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
