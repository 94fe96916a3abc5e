package notify

import (
	"fmt"
	"time"

	"github.com/EloyM96/avisor/internal/models"
)

// Serializable converts a value tree to JSON-compatible data on a best
// effort basis: unsupported values are stringified, never dropped.
func Serializable(value any) any {
	switch typed := value.(type) {
	case nil, bool, string, int, int64, float64:
		return typed
	case time.Time:
		return typed.Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = Serializable(item)
		}
		return out
	case map[string]bool:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Serializable(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// auditPayload is the JSON-safe payload persisted with every audit row
func auditPayload(playbook string, action models.Action, row map[string]any, ruleResults map[string]bool) map[string]any {
	payload := map[string]any{
		"playbook":     playbook,
		"action":       action.AsMap(),
		"row":          row,
		"rule_results": ruleResults,
	}
	return Serializable(payload).(map[string]any)
}

// adapterPayload is the uniform contract every adapter receives
func adapterPayload(playbook string, action models.Action, row map[string]any, ruleResults map[string]bool) map[string]any {
	return map[string]any{
		"playbook": playbook,
		"action":   Serializable(action.AsMap()),
		"context": map[string]any{
			"row":          Serializable(row),
			"rule_results": Serializable(ruleResults),
		},
	}
}

// ensureMapping coerces an adapter response: nil becomes an empty map
// and values are made JSON-safe
func ensureMapping(response map[string]any) map[string]any {
	if response == nil {
		return map[string]any{}
	}
	return Serializable(response).(map[string]any)
}
