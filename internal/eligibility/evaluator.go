// Package eligibility implements the condition language used to decide which
// assigned task variants apply to a user. Evaluation is pure: the same
// condition and subject always produce the same result and nothing is mutated.
package eligibility

import (
	"fmt"
	"strings"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// ConditionError reports a malformed condition tree. Callers are expected to
// contain it per item: one bad condition excludes that item only and must
// never fail the surrounding request.
type ConditionError struct {
	Reason string
}

func (e *ConditionError) Error() string {
	return "invalid condition: " + e.Reason
}

// VariantEligibility is the outcome of evaluating a variant's two condition
// trees for one user.
type VariantEligibility struct {
	Assigned bool
	Optional bool
}

// Evaluate runs a condition tree against a user attribute record.
//
// A nil condition is vacuously true: absence of a condition means the item
// applies to everyone. A leaf whose field resolves to a missing or null
// attribute is false for every operator, so an unset attribute can never
// satisfy a requirement.
func Evaluate(cond *models.Condition, subject map[string]interface{}) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Op {
	case models.OpAnd:
		if cond.Field != "" {
			return false, &ConditionError{Reason: "AND node carries a field"}
		}
		for i := range cond.Conditions {
			ok, err := Evaluate(&cond.Conditions[i], subject)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case models.OpOr:
		if cond.Field != "" {
			return false, &ConditionError{Reason: "OR node carries a field"}
		}
		for i := range cond.Conditions {
			ok, err := Evaluate(&cond.Conditions[i], subject)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case models.OpEqual, models.OpNotEqual,
		models.OpGreaterThan, models.OpGreaterThanOrEqual,
		models.OpLessThan, models.OpLessThanOrEqual:
		return evaluateLeaf(cond, subject)
	case "":
		return false, &ConditionError{Reason: "missing operator"}
	default:
		return false, &ConditionError{Reason: fmt.Sprintf("unknown operator %q", cond.Op)}
	}
}

// EvaluateVariant applies a variant's assignment and requirement conditions to
// the subject. Optional is derived only for assigned variants; a nil
// requirement condition means the variant is required.
func EvaluateVariant(assignedIf, optionalIf *models.Condition, subject map[string]interface{}) (VariantEligibility, error) {
	assigned, err := Evaluate(assignedIf, subject)
	if err != nil {
		return VariantEligibility{}, err
	}
	if !assigned {
		return VariantEligibility{}, nil
	}

	optional := false
	if optionalIf != nil {
		optional, err = Evaluate(optionalIf, subject)
		if err != nil {
			return VariantEligibility{}, err
		}
	}
	return VariantEligibility{Assigned: true, Optional: optional}, nil
}

func evaluateLeaf(cond *models.Condition, subject map[string]interface{}) (bool, error) {
	if cond.Field == "" {
		return false, &ConditionError{Reason: "leaf is missing a field"}
	}
	if len(cond.Conditions) > 0 {
		return false, &ConditionError{Reason: "leaf carries nested conditions"}
	}

	actual, found := lookup(subject, cond.Field)
	if !found || actual == nil {
		return false, nil
	}

	switch cond.Op {
	case models.OpEqual:
		return equal(actual, cond.Value), nil
	case models.OpNotEqual:
		return !equal(actual, cond.Value), nil
	}

	left, lok := toFloat(actual)
	right, rok := toFloat(cond.Value)
	if !lok || !rok {
		return false, nil
	}
	switch cond.Op {
	case models.OpGreaterThan:
		return left > right, nil
	case models.OpGreaterThanOrEqual:
		return left >= right, nil
	case models.OpLessThan:
		return left < right, nil
	case models.OpLessThanOrEqual:
		return left <= right, nil
	}
	return false, &ConditionError{Reason: fmt.Sprintf("unknown operator %q", cond.Op)}
}

// lookup resolves a dotted path such as "studentData.grade" inside nested maps.
func lookup(subject map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = subject
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equal(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
