// Package config loads lagmeter settings from an optional config file and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first of candidates present in settings, trying
// each key as written and lowercased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// blank reports whether a config value should fall back to the zero value.
func blank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func trimmed(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func asString(value interface{}) (string, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value), nil
	}
	return s, nil
}

func asInt(value interface{}) (int, error) {
	if blank(value) {
		return 0, nil
	}
	i, err := cast.ToIntE(trimmed(value))
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %v (%T)", value, value)
	}
	return i, nil
}

func asFloat64(value interface{}) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	f, err := cast.ToFloat64E(trimmed(value))
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %v (%T)", value, value)
	}
	return f, nil
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	b, err := cast.ToBoolE(trimmed(value))
	if err != nil {
		return false, fmt.Errorf("expected a boolean, got %v (%T)", value, value)
	}
	return b, nil
}

// asDuration accepts Go duration strings. Bare numbers are seconds, so
// `duration: 30` in a config file means thirty seconds.
func asDuration(value interface{}) (time.Duration, error) {
	if blank(value) {
		return 0, nil
	}
	switch v := trimmed(value).(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(v)
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported map type %T", value)
	}
	for k := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("map key cannot be empty")
		}
	}
	return m, nil
}

// asStringSlice accepts a YAML list or a single string. A single string may
// hold a comma-separated list, as broker addresses usually are.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	if ss, ok := value.([]string); ok {
		return ss, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
	out := make([]string, len(items))
	for i, item := range items {
		str, err := asString(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = str
	}
	return out, nil
}

// toStringKeyMap normalizes a nested config section to lowercase string keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	section, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	result := make(map[string]interface{}, len(section))
	for key, val := range section {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
