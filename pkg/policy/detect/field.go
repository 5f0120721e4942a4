package detect

import (
	"reflect"
	"strconv"
)

// walk descends into nested maps and slices. A nil root with a non-empty
// path is absent.
func walk(root any, path []string) (any, bool) {
	cur := root
	for _, part := range path {
		if cur == nil {
			return nil, false
		}
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
			continue
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
			continue
		}

		rv := reflect.ValueOf(cur)
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			next := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
			if !next.IsValid() {
				return nil, false
			}
			cur = next.Interface()
		case reflect.Slice, reflect.Array:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= rv.Len() {
				return nil, false
			}
			cur = rv.Index(idx).Interface()
		default:
			return nil, false
		}
	}
	if root == nil {
		return nil, false
	}
	return cur, true
}

// isEmpty reports whether v carries no usable value.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
