package query

import "fmt"

// RootID names the implicit top-level group.
const RootID = "@root"

// MaxConditions bounds the number of filter items in one request.
const MaxConditions = 64

// Operator is a comparison in a leaf condition.
type Operator string

// Supported operators.
const (
	OpEq         Operator = "="
	OpNotEq      Operator = "<>"
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpBetween    Operator = "BETWEEN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

var operators = map[Operator]bool{
	OpEq: true, OpNotEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpBetween: true, OpContains: true,
	OpStartsWith: true, OpIsNull: true, OpIsNotNull: true,
}

// IsValid reports whether o is supported.
func (o Operator) IsValid() bool { return operators[o] }

// checkArity validates the number of values o needs.
func (o Operator) checkArity(n int) error {
	switch o {
	case OpIsNull, OpIsNotNull:
		return nil
	case OpIn, OpNotIn:
		if n == 0 {
			return fmt.Errorf("operator %s needs at least one value", o)
		}
	case OpBetween:
		if n != 2 {
			return fmt.Errorf("operator %s needs exactly two values", o)
		}
	default:
		if n != 1 {
			return fmt.Errorf("operator %s needs exactly one value", o)
		}
	}
	return nil
}

// Conjunction joins the members of a group.
type Conjunction string

// Conjunctions.
const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// Condition is a leaf comparison.
type Condition struct {
	ID       string
	Path     string
	Operator Operator
	Values   []string
}

// NewCondition validates and creates a Condition.
func NewCondition(path string, op Operator, values ...string) (Condition, error) {
	if path == "" {
		return Condition{}, fmt.Errorf("condition path is required")
	}
	if !pathRegex.MatchString(path) {
		return Condition{}, fmt.Errorf("invalid condition path %q", path)
	}
	if op == "" {
		op = OpEq
	}
	if !op.IsValid() {
		return Condition{}, fmt.Errorf("unsupported operator %q", op)
	}
	if err := op.checkArity(len(values)); err != nil {
		return Condition{}, fmt.Errorf("condition on %q: %w", path, err)
	}
	return Condition{Path: path, Operator: op, Values: values}, nil
}

// Group is a set of conditions and nested groups joined by one conjunction.
type Group struct {
	ID          string
	Conjunction Conjunction
	Conditions  []Condition
	Groups      []Group
}

// NewGroup builds a group from already validated members.
func NewGroup(conj Conjunction, conds []Condition, groups ...Group) Group {
	return Group{Conjunction: conj, Conditions: conds, Groups: groups}
}

// IsEmpty reports whether the group has no effective condition.
func (g Group) IsEmpty() bool {
	if len(g.Conditions) > 0 {
		return false
	}
	for _, sub := range g.Groups {
		if !sub.IsEmpty() {
			return false
		}
	}
	return true
}

// Paths returns every condition path in the tree.
func (g Group) Paths() []string {
	var out []string
	for _, c := range g.Conditions {
		out = append(out, c.Path)
	}
	for _, sub := range g.Groups {
		out = append(out, sub.Paths()...)
	}
	return out
}

// Direction orders a sort key.
type Direction string

// Directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sort is one ordering directive.
type Sort struct {
	Path      string
	Direction Direction
	Langcode  string
}

// Page is the requested window.
type Page struct {
	Offset int
	Limit  int
}

// Query is the parsed request, before visibility and scoping are applied.
type Query struct {
	Filter Group
	Sort   []Sort
	Page   Page
	Search string
	Facets []string
}
