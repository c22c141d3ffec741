// Package conditions evaluates trigger match conditions against event payloads.
//
// A condition set is a map from a dotted path into the payload to an operator
// and operand. Every condition must hold for the set to match. Evaluation is a
// pure function of its inputs.
package conditions

import (
	"sort"
	"strings"

	"github.com/dukex/sequences/pkg/models"
)

// Matches reports whether payload satisfies every condition. An empty set
// matches any payload. Conditions with an unknown operator are vacuously true;
// use Unknown to report them.
func Matches(payload any, conditions map[string]models.Condition) bool {
	for field, condition := range conditions {
		value, _ := Lookup(payload, field)

		if !Evaluate(condition.Operator, value, condition.Value) {
			return false
		}
	}

	return true
}

// Unknown returns the fields, sorted, whose operator is not recognised.
func Unknown(conditions map[string]models.Condition) []string {
	var fields []string

	for field, condition := range conditions {
		if !condition.Operator.Known() {
			fields = append(fields, field)
		}
	}

	sort.Strings(fields)

	return fields
}

// Evaluate applies a single operator to the resolved value and the configured operand.
func Evaluate(operator models.Operator, value, operand any) bool {
	switch operator {
	case models.OperatorEquals:
		return looseEquals(value, operand)
	case models.OperatorNotEquals:
		return !looseEquals(value, operand)
	case models.OperatorContains:
		s, ok := value.(string)

		return ok && strings.Contains(s, toString(operand))
	case models.OperatorNotContains:
		s, ok := value.(string)

		return ok && !strings.Contains(s, toString(operand))
	case models.OperatorGreaterThan:
		return compareNumbers(value, operand, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return compareNumbers(value, operand, func(a, b float64) bool { return a < b })
	case models.OperatorExists:
		return value != nil
	case models.OperatorNotExists:
		return value == nil
	default:
		return true
	}
}

func compareNumbers(value, operand any, cmp func(a, b float64) bool) bool {
	a, ok := toNumber(value)
	if !ok {
		return false
	}

	b, ok := toNumber(operand)
	if !ok {
		return false
	}

	return cmp(a, b)
}
