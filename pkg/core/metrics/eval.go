package metrics

// DiagnosticReason classifies why a metric came out null.
type DiagnosticReason string

const (
	ReasonMissingDependency DiagnosticReason = "MISSING_DEPENDENCY"
	ReasonDivideByZero      DiagnosticReason = "DIVIDE_BY_ZERO"
	ReasonInvalidOp         DiagnosticReason = "INVALID_OP"
)

// Diagnostic records one failed metric: which one, why, and the operand that
// caused it. Failures never abort sibling metrics.
type Diagnostic struct {
	MetricKey string           `json:"metric_key"`
	Reason    DiagnosticReason `json:"reason"`
	Operand   string           `json:"operand,omitempty"`
}

// Evaluate computes every metric once, in dependency order, over the base
// value map. A nil entry in base, or a key not present at all, is missing
// data: any formula touching it yields nil, never zero. Division by a
// resolved zero also yields nil. The only error is a dependency cycle.
func Evaluate(defs []MetricDefinition, base map[string]*float64) (map[string]*float64, error) {
	values, _, _, err := evaluateAll(defs, base)
	return values, err
}

// EvaluateWithDiagnostics is Evaluate plus a typed reason per failed metric.
func EvaluateWithDiagnostics(defs []MetricDefinition, base map[string]*float64) (map[string]*float64, []Diagnostic, error) {
	values, diags, _, err := evaluateAll(defs, base)
	return values, diags, err
}

// EvaluateWithTrace is Evaluate plus the realized dependency list per metric:
// the operands resolved from the value map, literals excluded. Its values are
// identical to Evaluate's for the same input.
func EvaluateWithTrace(defs []MetricDefinition, base map[string]*float64) (map[string]*float64, map[string][]string, error) {
	values, _, trace, err := evaluateAll(defs, base)
	return values, trace, err
}

// EvaluateFull returns values, diagnostics, and trace from one evaluation.
// The orchestrator wants all three without paying for three passes.
func EvaluateFull(defs []MetricDefinition, base map[string]*float64) (map[string]*float64, []Diagnostic, map[string][]string, error) {
	return evaluateAll(defs, base)
}

func evaluateAll(defs []MetricDefinition, base map[string]*float64) (map[string]*float64, []Diagnostic, map[string][]string, error) {
	sorted, err := SortMetrics(defs)
	if err != nil {
		return nil, nil, nil, err
	}

	values := make(map[string]*float64, len(base)+len(sorted))
	for k, v := range base {
		values[k] = v
	}

	var diags []Diagnostic
	trace := make(map[string][]string, len(sorted))

	for _, def := range sorted {
		result, diag, deps := evalFormula(def, values)
		values[def.Key] = result
		trace[def.Key] = deps
		if diag != nil {
			diags = append(diags, *diag)
		}
	}
	return values, diags, trace, nil
}

func evalFormula(def MetricDefinition, values map[string]*float64) (*float64, *Diagnostic, []string) {
	var deps []string

	resolve := func(operand string) (*float64, bool) {
		if lit, ok := literalValue(operand); ok {
			return &lit, true
		}
		recorded := false
		for _, d := range deps {
			if d == operand {
				recorded = true
				break
			}
		}
		if !recorded {
			deps = append(deps, operand)
		}
		v, present := values[operand]
		if !present {
			return nil, false
		}
		return v, true
	}

	left, leftOK := resolve(def.Formula.Left)
	right, rightOK := resolve(def.Formula.Right)

	if !leftOK || left == nil {
		return nil, &Diagnostic{MetricKey: def.Key, Reason: ReasonMissingDependency, Operand: def.Formula.Left}, deps
	}
	if !rightOK || right == nil {
		return nil, &Diagnostic{MetricKey: def.Key, Reason: ReasonMissingDependency, Operand: def.Formula.Right}, deps
	}

	var out float64
	switch def.Formula.Op {
	case OpAdd:
		out = *left + *right
	case OpSubtract:
		out = *left - *right
	case OpMultiply:
		out = *left * *right
	case OpDivide:
		if *right == 0 {
			return nil, &Diagnostic{MetricKey: def.Key, Reason: ReasonDivideByZero, Operand: def.Formula.Right}, deps
		}
		out = *left / *right
	default:
		return nil, &Diagnostic{MetricKey: def.Key, Reason: ReasonInvalidOp, Operand: string(def.Formula.Op)}, deps
	}
	return &out, nil, deps
}

// BaseValues lifts a sparse statement map into the nullable form Evaluate
// consumes. Keys absent from m stay absent, which reads as null downstream.
func BaseValues(sources ...map[string]float64) map[string]*float64 {
	out := make(map[string]*float64)
	for _, m := range sources {
		for k, v := range m {
			vv := v
			out[k] = &vv
		}
	}
	return out
}
