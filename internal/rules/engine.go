package rules

import (
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// Rule is the in-memory representation of one declarative rule
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Expression  string `yaml:"when"`

	program *vm.Program
	lookups []lookup
}

// EvaluationError carries the id of the rule whose expression failed.
// Rule errors are never swallowed.
type EvaluationError struct {
	RuleID string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("error evaluating rule '%s': %v", e.RuleID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// RuleSet is a compiled collection of rules loaded from a YAML document.
// Evaluation is independent per rule and free of side effects.
type RuleSet struct {
	rules []Rule
}

type rulesetDoc struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRuleSet parses and compiles a ruleset document
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no se pudo leer el fichero de reglas %s: %w", path, err)
	}

	var doc rulesetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("el fichero de reglas no es válido (%s): %w", path, err)
	}

	return NewRuleSet(doc.Rules)
}

// NewRuleSet compiles the given rules
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		expression := rule.Expression
		if expression == "" {
			expression = "false"
		}
		program, err := expr.Compile(expression)
		if err != nil {
			return nil, &EvaluationError{RuleID: rule.ID, Err: err}
		}
		lookups, err := collectLookups(expression)
		if err != nil {
			return nil, &EvaluationError{RuleID: rule.ID, Err: err}
		}
		rule.Expression = expression
		rule.program = program
		rule.lookups = lookups
		compiled = append(compiled, rule)
	}
	return &RuleSet{rules: compiled}, nil
}

// Rules returns the compiled rules in document order
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Evaluate runs every rule against the context and returns rule id to
// boolean outcome. Any rule failure aborts with an EvaluationError.
func (rs *RuleSet) Evaluate(context map[string]any) (map[string]bool, error) {
	env := Env(context)
	results := make(map[string]bool, len(rs.rules))
	for _, rule := range rs.rules {
		if err := resolveLookups(rule.lookups, env); err != nil {
			return nil, &EvaluationError{RuleID: rule.ID, Err: err}
		}
		value, err := expr.Run(rule.program, env)
		if err != nil {
			return nil, &EvaluationError{RuleID: rule.ID, Err: err}
		}
		results[rule.ID] = Truthy(value)
	}
	return results, nil
}

// Eval compiles and evaluates a single expression against the context.
// The renderer uses this for guards and {{ }} interpolation.
func Eval(expression string, context map[string]any) (any, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	lookups, err := collectLookups(expression)
	if err != nil {
		return nil, err
	}
	env := Env(context)
	if err := resolveLookups(lookups, env); err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// lookup is one name reference found in an expression: a bare
// identifier, or a constant key accessed on an identifier.
type lookup struct {
	name string
	key  string
}

type lookupVisitor struct {
	lookups []lookup
}

func (v *lookupVisitor) Visit(node *ast.Node) {
	switch typed := (*node).(type) {
	case *ast.IdentifierNode:
		v.lookups = append(v.lookups, lookup{name: typed.Value})
	case *ast.MemberNode:
		base, okBase := typed.Node.(*ast.IdentifierNode)
		property, okProp := typed.Property.(*ast.StringNode)
		if okBase && okProp {
			v.lookups = append(v.lookups, lookup{name: base.Value, key: property.Value})
		}
	}
}

// collectLookups parses the expression and records every name it reads
func collectLookups(expression string) ([]lookup, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	visitor := &lookupVisitor{}
	ast.Walk(&tree.Node, visitor)
	return visitor.lookups, nil
}

// resolveLookups verifies every recorded name against the environment.
// Names resolve to the context, then the helpers; anything else is a
// lookup error, never a silent nil.
func resolveLookups(lookups []lookup, env map[string]any) error {
	for _, l := range lookups {
		value, ok := env[l.name]
		if !ok {
			return fmt.Errorf("name %q is not defined", l.name)
		}
		if l.key == "" {
			continue
		}
		switch mapping := value.(type) {
		case map[string]any:
			if _, ok := mapping[l.key]; !ok {
				return fmt.Errorf("key %q is not defined on %q", l.key, l.name)
			}
		case map[string]bool:
			if _, ok := mapping[l.key]; !ok {
				return fmt.Errorf("key %q is not defined on %q", l.key, l.name)
			}
		}
	}
	return nil
}

// Env builds the evaluation environment: the caller's context plus the
// closed helper set. No other names resolve.
func Env(context map[string]any) map[string]any {
	env := map[string]any{
		"today":      today,
		"parse_date": parseDate,
		"days_until": daysUntil,
		"str":        toStr,
		"int":        toInt,
		"float":      toFloat,
		"bool":       Truthy,
	}
	for key, value := range context {
		env[key] = value
	}
	return env
}

// Truthy applies container-style truthiness: nil, false, zero numbers,
// empty strings and empty collections are false
func Truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	case time.Time:
		return !typed.IsZero()
	default:
		return true
	}
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO date: %q", value)
}

func daysUntil(value any) (int, error) {
	var target time.Time
	switch typed := value.(type) {
	case time.Time:
		target = typed
	case string:
		parsed, err := parseDate(typed)
		if err != nil {
			return 0, err
		}
		target = parsed
	default:
		return 0, fmt.Errorf("days_until expects a date, got %T", value)
	}
	target = time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today()).Hours() / 24), nil
}

func toStr(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func toInt(value any) (int, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		return int(typed), nil
	case bool:
		if typed {
			return 1, nil
		}
		return 0, nil
	case string:
		var parsed int
		if _, err := fmt.Sscanf(typed, "%d", &parsed); err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func toFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case float64:
		return typed, nil
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(typed, "%g", &parsed); err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}
