package vnode

// ToFloat coerces the numeric shapes an attribute bag or event payload can
// carry into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// FloatAttr reads a numeric attribute with a fallback.
func FloatAttr(data map[string]any, key string, fallback float64) float64 {
	if v, ok := data[key]; ok {
		if f, ok := ToFloat(v); ok {
			return f
		}
	}
	return fallback
}

// IntAttr reads an integer attribute with a fallback.
func IntAttr(data map[string]any, key string, fallback int) int {
	return int(FloatAttr(data, key, float64(fallback)))
}

// StringAttr reads a string attribute with a fallback.
func StringAttr(data map[string]any, key, fallback string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// BoolAttr reads a boolean attribute with a fallback.
func BoolAttr(data map[string]any, key string, fallback bool) bool {
	if v, ok := data[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
