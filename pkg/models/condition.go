package models

// Operator compares a resolved payload field against a literal value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// LogicOp combines the results of a condition group's children.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// Condition is a node of a workflow's condition tree. A node is either a
// leaf (Field/Operator/Value set) or a group (Logic/Children set). A group
// with no children evaluates to true: no conditions means always execute.
type Condition struct {
	// Leaf fields. Field is a dot-separated path into the trigger payload.
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	// Group fields.
	Logic    LogicOp      `json:"logic,omitempty"`
	Children []*Condition `json:"conditions,omitempty"`
}

// IsGroup reports whether the node combines children rather than testing a field.
func (c *Condition) IsGroup() bool {
	return c.Logic != "" || len(c.Children) > 0
}

// AllOf builds an AND group, the shape produced by the workflow editor for a
// flat condition list.
func AllOf(children ...*Condition) *Condition {
	return &Condition{Logic: LogicAnd, Children: children}
}

// AnyOf builds an OR group.
func AnyOf(children ...*Condition) *Condition {
	return &Condition{Logic: LogicOr, Children: children}
}
