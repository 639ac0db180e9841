package config

// Merge overlays overrides on defaults. Nested maps are merged key by key;
// every other value, slices included, replaces the default outright. Neither
// argument is modified.
func Merge(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}

	for k, v := range overrides {
		sub, ok := asMap(v)
		if !ok {
			merged[k] = v
			continue
		}

		base, _ := asMap(merged[k])
		merged[k] = Merge(base, sub)
	}
	return merged
}

// asMap reports whether v is a non-nil string-keyed mapping. yaml.v2-style
// map[any]any values are converted so YAML and JSON inputs behave the same.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		if m == nil {
			return nil, false
		}
		return m, true
	case map[any]any:
		if m == nil {
			return nil, false
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}
