package executor

import (
	"fmt"
	"time"

	"OffloadEngine/errs"
)

// String reads an optional string value from options or input maps.
func String(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s must be a string, got %T", key, raw))
	}
	return s, nil
}

// RequiredString is String that fails when the value is missing or empty.
func RequiredString(values map[string]any, key string) (string, error) {
	s, err := String(values, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errs.New(errs.ErrInvalidInput, key+" is required")
	}
	return s, nil
}

func Bool(values map[string]any, key string) (bool, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s must be a boolean, got %T", key, raw))
	}
	return b, nil
}

// Duration accepts a Go duration string or a number of milliseconds.
func Duration(values map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s: %v", key, err))
		}
		return d, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case time.Duration:
		return v, nil
	default:
		return 0, errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s must be a duration, got %T", key, raw))
	}
}

// Strings reads a list of strings.
func Strings(values map[string]any, key string) ([]string, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s must contain strings, got %T", key, item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errs.New(errs.ErrInvalidInput, fmt.Sprintf("%s must be a list of strings, got %T", key, raw))
	}
}
