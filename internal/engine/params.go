package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned when a generation parameter has the wrong type.
var ErrInvalidParameter = errors.New("invalid generation parameter")

// Float reads a numeric parameter. Values arrive as whatever numeric type the
// channel codec produced, so every integer and float kind is accepted.
func Float(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int8:
		return float64(n), true, nil
	case int16:
		return float64(n), true, nil
	case int32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint:
		return float64(n), true, nil
	case uint8:
		return float64(n), true, nil
	case uint16:
		return float64(n), true, nil
	case uint32:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	}
	return 0, false, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidParameter, key, v)
}

// Int reads a whole-number parameter.
func Int(params map[string]any, key string) (int, bool, error) {
	f, ok, err := Float(params, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != float64(int(f)) {
		return 0, false, fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidParameter, key, f)
	}
	return int(f), true, nil
}

// Bool reads a boolean parameter.
func Bool(params map[string]any, key string) (bool, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidParameter, key, v)
	}
	return b, true, nil
}

// String reads a string parameter.
func String(params map[string]any, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParameter, key, v)
	}
	return s, true, nil
}
