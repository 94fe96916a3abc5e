package notify

import (
	"fmt"
	"strings"

	"github.com/EloyM96/avisor/internal/models"
	"github.com/EloyM96/avisor/internal/rules"
)

// RenderContext shapes the evaluation context shared by guards and
// templates: dotted and indexed access both work on the maps.
func RenderContext(row map[string]any, ruleResults map[string]bool) map[string]any {
	results := make(map[string]any, len(ruleResults))
	for id, outcome := range ruleResults {
		results[id] = outcome
	}
	return map[string]any{
		"row":          row,
		"rule_results": results,
	}
}

// RenderAction template-expands every string field of the action except
// the when guard. The input action is never mutated.
func RenderAction(action models.Action, context map[string]any) (models.Action, error) {
	rendered := action.Clone()
	for key, value := range rendered.Fields {
		text, ok := value.(string)
		if !ok {
			continue
		}
		expanded, err := rules.RenderTemplate(text, context)
		if err != nil {
			return models.Action{}, fmt.Errorf("error al renderizar el campo %q: %w", key, err)
		}
		rendered.Fields[key] = expanded
	}
	return rendered, nil
}

// ShouldDispatch evaluates the when guard. Missing or blank guards pass;
// {{ }} wrappers are stripped before evaluation; literal boolean words
// are honoured before falling back to expression truthiness.
func ShouldDispatch(when string, context map[string]any) (bool, error) {
	expression := strings.TrimSpace(when)
	if expression == "" {
		return true, nil
	}
	if strings.HasPrefix(expression, "{{") && strings.HasSuffix(expression, "}}") {
		expression = strings.TrimSpace(expression[2 : len(expression)-2])
		if expression == "" {
			return true, nil
		}
	}

	value, err := rules.Eval(expression, context)
	if err != nil {
		return false, err
	}

	if text, ok := value.(string); ok {
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "", "false", "0", "no":
			return false, nil
		case "true", "1", "yes":
			return true, nil
		}
	}
	return rules.Truthy(value), nil
}
