package models

// Operator is a comparison applied by a trigger condition.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorExists      Operator = "exists"
	OperatorNotExists   Operator = "not_exists"
)

// Known reports whether the operator is one the evaluator understands.
func (o Operator) Known() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals,
		OperatorContains, OperatorNotContains,
		OperatorGreaterThan, OperatorLessThan,
		OperatorExists, OperatorNotExists:
		return true
	}

	return false
}

// Condition is matched against the value found at its map key, a dotted path
// into the event payload.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}
