package validator

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/theus-run/theus/pkg/audit"
	"github.com/theus-run/theus/pkg/types"
)

// RuleSpec is one field-level predicate, evaluated against whichever of
// min/max/eq/neq/min_len/max_len/regex it sets. Min, Max, Eq and Neq are
// checked only when the value is numeric (int, int32, int64, float32,
// float64); for any other value they are not evaluated. MinLen/MaxLen apply
// to values with a length and Regex to strings. Level and ThresholdMax
// override the audit recipe's defaults for this field's violations.
type RuleSpec struct {
	Field        string
	Min          *float64
	Max          *float64
	Eq           any
	Neq          any
	MinLen       *int
	MaxLen       *int
	Regex        string
	Level        *audit.Level
	ThresholdMax *int
	Message      string

	compiled *regexp.Regexp
}

// ProcessRules is the recipe entry for one process: its input and output
// rule sets.
type ProcessRules struct {
	Inputs  []RuleSpec
	Outputs []RuleSpec
}

// Validator checks process inputs and pending outputs against a static
// recipe, reporting violations to the shared audit.System.
type Validator struct {
	recipe map[string]ProcessRules
	auditS *audit.System
	base   audit.Recipe
}

// New returns a Validator backed by recipe and auditSystem. base supplies
// the audit.Recipe defaults (level, threshold) a RuleSpec may override.
func New(recipe map[string]ProcessRules, auditSystem *audit.System, base audit.Recipe) *Validator {
	return &Validator{recipe: recipe, auditS: auditSystem, base: base}
}

// ValidateInputs checks kwargs against the named process's input rules,
// calling audit.LogFail for each violated field in rule order until one of
// those calls returns an error. Returns that first audit error
// (AuditBlock/Abort/Stop/Warning), or nil.
func (v *Validator) ValidateInputs(name string, kwargs map[string]any) error {
	rules, ok := v.recipe[name]
	if !ok {
		return nil
	}
	for _, rule := range rules.Inputs {
		value, present := kwargs[rule.Field]
		if !present {
			continue
		}
		if err := v.checkRule(name, "input", rule, value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateOutputs checks the built pending patch against the named
// process's output rules, resolving each rule's field by dotted path.
func (v *Validator) ValidateOutputs(name string, pending map[string]any) error {
	rules, ok := v.recipe[name]
	if !ok {
		return nil
	}
	for _, rule := range rules.Outputs {
		value, ok := resolvePath(pending, rule.Field)
		if !ok {
			continue
		}
		if err := v.checkRule(name, "output", rule, value); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkRule(name, kind string, rule RuleSpec, value any) error {
	violation := v.violationMessage(rule, value)
	if violation == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s:%s", name, kind, rule.Field)
	message := rule.Message
	if message == "" {
		message = violation
	}

	recipe := v.base
	if rule.Level != nil {
		recipe.Level = *rule.Level
	}
	if rule.ThresholdMax != nil {
		recipe.ThresholdMax = *rule.ThresholdMax
	}
	return v.auditS.LogFail(key, message, recipe)
}

func (v *Validator) violationMessage(rule RuleSpec, value any) string {
	if n, ok := numeric(value); ok {
		switch {
		case rule.Min != nil && n < *rule.Min:
			return fmt.Sprintf("value %v < min %v", value, *rule.Min)
		case rule.Max != nil && n > *rule.Max:
			return fmt.Sprintf("value %v > max %v", value, *rule.Max)
		case rule.Eq != nil && !equalValues(value, rule.Eq):
			return fmt.Sprintf("value %v != %v", value, rule.Eq)
		case rule.Neq != nil && equalValues(value, rule.Neq):
			return fmt.Sprintf("value %v == %v (forbidden)", value, rule.Neq)
		}
	}

	if length, ok := lengthOf(value); ok {
		switch {
		case rule.MinLen != nil && length < *rule.MinLen:
			return fmt.Sprintf("length %d < min_len %d", length, *rule.MinLen)
		case rule.MaxLen != nil && length > *rule.MaxLen:
			return fmt.Sprintf("length %d > max_len %d", length, *rule.MaxLen)
		}
	}

	if s, ok := value.(string); ok && rule.Regex != "" {
		re := rule.compiled
		if re == nil {
			re = regexp.MustCompile(rule.Regex)
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("value %q failed regex %q", s, rule.Regex)
		}
	}

	return ""
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func equalValues(a, b any) bool {
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			return an == bn
		}
	}
	return a == b
}

func lengthOf(v any) (int, bool) {
	switch val := v.(type) {
	case string:
		return len(val), true
	case []any:
		return len(val), true
	case map[string]any:
		return len(val), true
	case *types.Set:
		return val.Len(), true
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
			return rv.Len(), true
		default:
			return 0, false
		}
	}
}

// resolvePath walks a dotted path through nested map[string]any values,
// returning (nil, false) if any segment is absent.
func resolvePath(data map[string]any, path string) (any, bool) {
	segs, err := types.ParsePath(path)
	if err != nil || len(segs) == 0 {
		return nil, false
	}
	var cur any = data
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.Key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
