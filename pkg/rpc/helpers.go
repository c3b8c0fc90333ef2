package rpc

import (
	"encoding/json"
	"strconv"
)

// Helper functions to safely extract fields from normalized map[string]any values.

// GetStringField retrieves the string value for the given key from a map. Numbers are formatted.
// Returns an empty string if the key is absent or not a scalar.
func GetStringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

// GetUint64Field retrieves a non-negative integer for key, accepting JSON numbers and decimal strings.
// Missing, negative or non-numeric values return 0.
func GetUint64Field(m map[string]any, key string) uint64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	return toUint64(v)
}

// GetMapField retrieves a nested object for key, or nil.
func GetMapField(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func toUint64(v any) uint64 {
	switch val := v.(type) {
	case float64:
		if val < 0 {
			return 0
		}
		return uint64(val)
	case json.Number:
		if u, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return u
		}
	case string:
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	case int:
		if val > 0 {
			return uint64(val)
		}
	case int64:
		if val > 0 {
			return uint64(val)
		}
	case uint64:
		return val
	}
	return 0
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	return 0
}
