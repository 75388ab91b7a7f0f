package argpath

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Segment is one step of an argument path: either a map key or a list index
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Key
}

// Parse splits a path like "filter.tags[0].name" into its segments
func Parse(path string) ([]Segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	var segments []Segment
	i := 0
	expectKey := true
	for i < len(path) {
		switch c := path[i]; {
		case c == '.':
			if expectKey {
				return nil, fmt.Errorf("path %q has an empty component at offset %d", path, i)
			}
			expectKey = true
			i++
		case c == '[':
			end := strings.IndexByte(path[i:], ']')
			if end == -1 {
				return nil, fmt.Errorf("path %q has an unterminated index at offset %d", path, i)
			}
			raw := path[i+1 : i+end]
			index, err := strconv.Atoi(raw)
			if err != nil || index < 0 {
				return nil, fmt.Errorf("path %q has invalid index %q", path, raw)
			}
			segments = append(segments, Segment{Index: index, IsIndex: true})
			expectKey = false
			i += end + 1
		default:
			if !expectKey {
				return nil, fmt.Errorf("path %q is missing a separator at offset %d", path, i)
			}
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				if path[i] == ']' {
					return nil, fmt.Errorf("path %q has an unexpected ']' at offset %d", path, i)
				}
				i++
			}
			segments = append(segments, Segment{Key: path[start:i]})
			expectKey = false
		}
	}
	if expectKey {
		return nil, fmt.Errorf("path %q ends with a separator", path)
	}

	return segments, nil
}

// Lookup resolves path against bag. The boolean is false when any segment is missing.
func Lookup(bag map[string]any, path string) (any, bool, error) {
	segments, err := Parse(path)
	if err != nil {
		return nil, false, err
	}

	var current any = bag
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false, nil
		}
		current = next
	}
	return current, true, nil
}

func step(value any, seg Segment) (any, bool) {
	if value == nil {
		return nil, false
	}

	if seg.IsIndex {
		if list, ok := value.([]any); ok {
			if seg.Index >= len(list) {
				return nil, false
			}
			return list[seg.Index], true
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, false
		}
		if seg.Index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.Index).Interface(), true
	}

	if m, ok := value.(map[string]any); ok {
		v, found := m[seg.Key]
		return v, found
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(seg.Key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

// Truthy reports whether a resolved argument value selects a conditional branch.
// nil, false, "" and empty lists or maps are falsy. Numbers are truthy whatever
// their value: a supplied 0 is still a supplied argument.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
