package metrics

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle in the metric graph. A cyclic graph
// has no evaluation order, so this aborts the whole evaluation.
type CycleError struct {
	Key  string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("metric graph cycle at %q (%s)", e.Key, strings.Join(e.Path, " -> "))
}

// SortMetrics returns the definitions in topological order: every metric
// appears after everything it depends on. Dependencies that are not
// themselves defined metrics are base values and impose no ordering.
// The order is deterministic for a given input order.
func SortMetrics(defs []MetricDefinition) ([]MetricDefinition, error) {
	byKey := make(map[string]MetricDefinition, len(defs))
	for _, def := range defs {
		byKey[def.Key] = def
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(defs))
	order := make([]MetricDefinition, 0, len(defs))
	var stack []string

	var visit func(key string) error
	visit = func(key string) error {
		def, isMetric := byKey[key]
		if !isMetric {
			return nil
		}
		switch state[key] {
		case done:
			return nil
		case visiting:
			// Close the loop for the error message: everything on the stack
			// from the first occurrence of key is part of the cycle.
			start := 0
			for i, k := range stack {
				if k == key {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), key)
			return &CycleError{Key: key, Path: path}
		}

		state[key] = visiting
		stack = append(stack, key)
		for _, dep := range def.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[key] = done
		order = append(order, def)
		return nil
	}

	for _, def := range defs {
		if err := visit(def.Key); err != nil {
			return nil, err
		}
	}
	return order, nil
}
