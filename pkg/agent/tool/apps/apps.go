// Package apps builds gollem tool sets over the external service clients.
// Each resolved service gets exactly one tool set; a turn never mixes tools
// from different services.
package apps

import (
	"fmt"

	"github.com/m-mizutani/gollem"
)

// extractInt extracts an int value from args map, accepting int, int64, or
// float64. Returns 0 when the key is absent so callers can apply defaults.
func extractInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func limitParam(description string) *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeInteger,
		Description: description,
		Required:    false,
	}
}
