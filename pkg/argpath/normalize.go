package argpath

import "encoding/json"

// Normalize replaces json.Number values anywhere in v with int64 or float64,
// so argument bags decoded with UseNumber can be handed to the store driver
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	}
	return v
}

// NormalizeMap is Normalize for a whole argument bag
func NormalizeMap(bag map[string]any) map[string]any {
	if bag == nil {
		return nil
	}
	return Normalize(bag).(map[string]any)
}
