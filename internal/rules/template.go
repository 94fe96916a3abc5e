package rules

import (
	"fmt"
	"strings"
)

// RenderTemplate replaces every literal {{ expr }} segment with the
// string form of the evaluated expression. Nil values render empty.
// This is the single interpolation form the engine supports.
func RenderTemplate(template string, context map[string]any) (string, error) {
	result := template
	start := strings.Index(result, "{{")
	for start != -1 {
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start
		expression := strings.TrimSpace(result[start+2 : end])

		value, err := Eval(expression, context)
		if err != nil {
			return "", err
		}
		replacement := ""
		if value != nil {
			replacement = fmt.Sprintf("%v", value)
		}

		result = result[:start] + replacement + result[end+2:]
		start = indexFrom(result, "{{", start+len(replacement))
	}
	return result, nil
}

func indexFrom(s, substr string, offset int) int {
	if offset >= len(s) {
		return -1
	}
	idx := strings.Index(s[offset:], substr)
	if idx == -1 {
		return -1
	}
	return idx + offset
}
