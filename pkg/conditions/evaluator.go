// Package conditions evaluates workflow condition trees against trigger payloads.
package conditions

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/beaconcrm/automation/pkg/models"
)

// Evaluator evaluates a condition tree against a trigger payload. Evaluation
// is deterministic and side-effect free; malformed conditions degrade to
// false with a warning instead of failing the routing pass.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate returns whether the payload satisfies the condition tree.
// A nil tree or an empty group means no conditions: always true.
func (e *Evaluator) Evaluate(cond *models.Condition, payload map[string]any) bool {
	if cond == nil {
		return true
	}

	if cond.IsGroup() {
		return e.evaluateGroup(cond, payload)
	}

	return e.evaluateLeaf(cond, payload)
}

// evaluateGroup short-circuits in declaration order: AND stops at the first
// false child, OR at the first true child.
func (e *Evaluator) evaluateGroup(cond *models.Condition, payload map[string]any) bool {
	if len(cond.Children) == 0 {
		return true
	}

	switch cond.Logic {
	case models.LogicOr:
		for _, child := range cond.Children {
			if e.Evaluate(child, payload) {
				return true
			}
		}

		return false
	case models.LogicAnd:
		fallthrough
	default:
		for _, child := range cond.Children {
			if !e.Evaluate(child, payload) {
				return false
			}
		}

		return true
	}
}

func (e *Evaluator) evaluateLeaf(cond *models.Condition, payload map[string]any) bool {
	fieldValue := ResolvePath(payload, cond.Field)

	// Only the existence operators give nil a meaning. Every other operator
	// evaluates to false against an unresolvable field.
	switch cond.Operator {
	case models.OpExists:
		return fieldValue != nil
	case models.OpNotExists:
		return fieldValue == nil
	}

	if fieldValue == nil {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return equalValues(fieldValue, cond.Value)
	case models.OpNotEquals:
		return !equalValues(fieldValue, cond.Value)
	case models.OpGreaterThan:
		return e.compareNumeric(cond, fieldValue, func(a, b float64) bool { return a > b })
	case models.OpLessThan:
		return e.compareNumeric(cond, fieldValue, func(a, b float64) bool { return a < b })
	case models.OpContains:
		return contains(fieldValue, cond.Value)
	case models.OpNotContains:
		return !contains(fieldValue, cond.Value)
	case models.OpIn:
		return within(fieldValue, cond.Value)
	case models.OpNotIn:
		return !within(fieldValue, cond.Value)
	default:
		e.logger.Warn("Unknown condition operator, evaluating to false",
			"operator", cond.Operator, "field", cond.Field)

		return false
	}
}

func (e *Evaluator) compareNumeric(cond *models.Condition, fieldValue any, cmp func(a, b float64) bool) bool {
	left, ok := toFloat(fieldValue)
	if !ok {
		e.logger.Warn("Condition field is not numeric, evaluating to false",
			"field", cond.Field, "value_type", reflect.TypeOf(fieldValue).String())

		return false
	}

	right, ok := toFloat(cond.Value)
	if !ok {
		e.logger.Warn("Condition value is not numeric, evaluating to false",
			"field", cond.Field, "operator", cond.Operator)

		return false
	}

	return cmp(left, right)
}

// ResolvePath walks a dot-separated path into a nested payload map.
// An unresolvable path returns nil.
func ResolvePath(payload map[string]any, path string) any {
	if path == "" || payload == nil {
		return nil
	}

	segments := strings.Split(path, ".")

	var current any = payload

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = node[segment]
		if !ok {
			return nil
		}
	}

	return current
}

// equalValues compares with numeric awareness: 100 and 100.0 are equal
// whether they arrived as int, float64 or json.Number.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}

		return false
	}

	return reflect.DeepEqual(a, b)
}

// contains handles both string containment and slice membership.
func contains(fieldValue, value any) bool {
	switch field := fieldValue.(type) {
	case string:
		needle, ok := value.(string)
		if !ok {
			return false
		}

		return strings.Contains(field, needle)
	case []any:
		for _, item := range field {
			if equalValues(item, value) {
				return true
			}
		}

		return false
	case []string:
		needle, ok := value.(string)
		if !ok {
			return false
		}

		for _, item := range field {
			if item == needle {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// within reports whether the field value is a member of the condition's list.
func within(fieldValue, value any) bool {
	switch list := value.(type) {
	case []any:
		for _, item := range list {
			if equalValues(fieldValue, item) {
				return true
			}
		}
	case []string:
		field, ok := fieldValue.(string)
		if !ok {
			return false
		}

		for _, item := range list {
			if item == field {
				return true
			}
		}
	}

	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
