// Package metrics evaluates the declarative metric graph: named formulas
// over base statement values and over each other, computed once in
// dependency order with missing data carried as explicit nulls.
package metrics

import (
	"fmt"
	"strconv"
)

// Operator is the closed set of formula operations. Anything else is
// rejected when the formula is constructed, not when it is evaluated.
type Operator string

const (
	OpAdd      Operator = "add"
	OpSubtract Operator = "subtract"
	OpMultiply Operator = "multiply"
	OpDivide   Operator = "divide"
)

// Formula is a single two-operand node. Operands are strings resolved at
// evaluation time: numeric literals first, otherwise a reference into the
// accumulating value map.
type Formula struct {
	Op    Operator `json:"op"`
	Left  string   `json:"left"`
	Right string   `json:"right"`
}

// ParseFormula builds a Formula, rejecting unknown operators.
func ParseFormula(op, left, right string) (Formula, error) {
	switch Operator(op) {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
	default:
		return Formula{}, fmt.Errorf("unknown formula operator %q", op)
	}
	if left == "" || right == "" {
		return Formula{}, fmt.Errorf("formula operands must be non-empty (op %q)", op)
	}
	return Formula{Op: Operator(op), Left: left, Right: right}, nil
}

// Valid reports whether the operator belongs to the closed set.
func (op Operator) Valid() bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	}
	return false
}

// literalValue parses an operand as a numeric literal. Metric and base keys
// are uppercase identifiers, so anything that parses as a float is a literal.
func literalValue(operand string) (float64, bool) {
	v, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
