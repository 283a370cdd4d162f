package application

import (
	"math"
	"strings"

	"tracker-mcp-server/internal/domain"
)

// getStringParam extracts a string parameter from the arguments map.
// Returns an error if the parameter is required but missing, blank or not a string.
func getStringParam(args map[string]interface{}, name string, required bool) (string, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return "", domain.NewValidationError("missing required parameter: %s", name)
		}
		return "", nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", domain.NewValidationError("parameter %s must be a string", name)
	}
	if required && strings.TrimSpace(strValue) == "" {
		return "", domain.NewValidationError("parameter %s must not be empty", name)
	}

	return strValue, nil
}

// getOptionalIntParam extracts an optional integer parameter. A missing
// parameter yields nil so callers can tell "absent" from zero.
func getOptionalIntParam(args map[string]interface{}, name string) (*int, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return nil, nil
	}

	// JSON numbers decode as float64.
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, domain.NewValidationError("parameter %s must be an integer", name)
		}
		n := int(math.Max(math.Min(v, math.MaxInt32), math.MinInt32))
		return &n, nil
	case int:
		return &v, nil
	case int64:
		n := int(v)
		return &n, nil
	default:
		return nil, domain.NewValidationError("parameter %s must be an integer", name)
	}
}

// getStringSliceParam extracts an optional array of strings.
func getStringSliceParam(args map[string]interface{}, name string) ([]string, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, domain.NewValidationError("parameter %s must be an array of strings", name)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, domain.NewValidationError("parameter %s must be an array of strings", name)
	}
}

// rejectUnknownParams fails when args carries a key the tool does not declare.
func rejectUnknownParams(args map[string]interface{}, allowed ...string) error {
	for key := range args {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			return domain.NewValidationError("unknown parameter: %s", key)
		}
	}
	return nil
}
