package mapsafe

// Get retrieves a typed value from a map[string]any, such as backend options
// decoded from YAML. If the key is missing or the value cannot be converted,
// it returns the default value.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		switch x := val.(type) {
		case int:
			return any(x).(T)
		case int64:
			return any(int(x)).(T)
		case float64:
			return any(int(x)).(T)
		}
	case int32:
		switch x := val.(type) {
		case int:
			return any(int32(x)).(T)
		case int64:
			return any(int32(x)).(T)
		case float64:
			return any(int32(x)).(T)
		}
	case float64:
		switch x := val.(type) {
		case float64:
			return any(x).(T)
		case int:
			return any(float64(x)).(T)
		}
	case string:
		if s, ok := val.(string); ok {
			return any(s).(T)
		}
	case bool:
		if b, ok := val.(bool); ok {
			return any(b).(T)
		}
	default:
		// fallback: if type matches exactly
		if v, ok := val.(T); ok {
			return v
		}
	}

	return defaultValue
}
