package tools

import (
	"math"
	"strings"

	"github.com/theapemachine/memoria/pkg/errors"
)

// JSON numbers arrive as float64, lists as []any.

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return strings.TrimSpace(value)
}

func requireString(args map[string]any, key string) (string, error) {
	value := stringArg(args, key)

	if value == "" {
		return "", errors.Invalid(key, "%s is required", key)
	}

	return value, nil
}

func optionalString(args map[string]any, key string) *string {
	value, ok := args[key].(string)

	if !ok {
		return nil
	}

	value = strings.TrimSpace(value)

	return &value
}

/*
intArg reads a whole number. A missing or null argument yields nil; a
fractional or non-numeric one is rejected instead of truncated.
*/
func intArg(args map[string]any, key string) (*int, error) {
	var number float64

	switch value := args[key].(type) {
	case nil:
		return nil, nil
	case int:
		return &value, nil
	case int64:
		n := int(value)
		return &n, nil
	case float64:
		number = value
	default:
		return nil, errors.Invalid(key, "%s must be a whole number, got %v", key, value)
	}

	if math.IsInf(number, 0) || math.Trunc(number) != number {
		return nil, errors.Invalid(key, "%s must be a whole number, got %v", key, number)
	}

	n := int(number)

	return &n, nil
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch value := args[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	}

	return 0, false
}

func boolArg(args map[string]any, key string) bool {
	value, _ := args[key].(bool)
	return value
}

/*
stringsArg accepts a JSON array or a comma separated string, since
assistants produce both for list parameters.
*/
func stringsArg(args map[string]any, key string) ([]string, bool) {
	var out []string

	switch value := args[key].(type) {
	case []any:
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range value {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(value, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	default:
		return nil, false
	}

	if out == nil {
		out = []string{}
	}

	return out, true
}
