package metrics

import (
	"fmt"
	"os"

	hjson "github.com/hjson/hjson-go/v4"
)

// MetricDefinition declares one derived metric: its key, the keys it reads,
// and the formula producing it.
type MetricDefinition struct {
	Key       string   `json:"key"`
	DependsOn []string `json:"depends_on"`
	Formula   Formula  `json:"formula"`
}

// Registry is a versioned set of metric definitions. The version is stamped
// onto snapshots so replays can tell which formula set produced a result.
type Registry struct {
	Version string             `json:"version"`
	Metrics []MetricDefinition `json:"metrics"`
}

// LoadRegistry reads a metric registry from an hjson file. Analysts maintain
// these by hand, so the format allows comments and unquoted keys.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metric registry: %w", err)
	}
	reg, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("parse metric registry %s: %w", path, err)
	}
	return reg, nil
}

// ParseRegistry decodes hjson registry bytes and validates every formula.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := hjson.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("hjson: %w", err)
	}
	seen := make(map[string]bool, len(reg.Metrics))
	for _, def := range reg.Metrics {
		if def.Key == "" {
			return nil, fmt.Errorf("metric definition with empty key")
		}
		if seen[def.Key] {
			return nil, fmt.Errorf("duplicate metric definition %q", def.Key)
		}
		seen[def.Key] = true
		if _, err := ParseFormula(string(def.Formula.Op), def.Formula.Left, def.Formula.Right); err != nil {
			return nil, fmt.Errorf("metric %q: %w", def.Key, err)
		}
	}
	return &reg, nil
}

// DefaultRegistry is the built-in formula set used when no registry file is
// configured. It mirrors config/metrics.hjson.
func DefaultRegistry() *Registry {
	return &Registry{
		Version: "builtin-2025.2",
		Metrics: []MetricDefinition{
			{
				Key:       "GROSS_PROFIT",
				DependsOn: []string{"TOTAL_REVENUE", "COST_OF_GOODS_SOLD"},
				Formula:   Formula{Op: OpSubtract, Left: "TOTAL_REVENUE", Right: "COST_OF_GOODS_SOLD"},
			},
			{
				Key:       "OPERATING_INCOME",
				DependsOn: []string{"GROSS_PROFIT", "TOTAL_OPERATING_EXPENSES"},
				Formula:   Formula{Op: OpSubtract, Left: "GROSS_PROFIT", Right: "TOTAL_OPERATING_EXPENSES"},
			},
			{
				Key:       "EBITDA",
				DependsOn: []string{"OPERATING_INCOME", "DEPRECIATION"},
				Formula:   Formula{Op: OpAdd, Left: "OPERATING_INCOME", Right: "DEPRECIATION"},
			},
			{
				Key:       "TOTAL_DEBT",
				DependsOn: []string{"SHORT_TERM_DEBT", "LONG_TERM_DEBT"},
				Formula:   Formula{Op: OpAdd, Left: "SHORT_TERM_DEBT", Right: "LONG_TERM_DEBT"},
			},
			{
				Key:       "DEBT_TO_EBITDA",
				DependsOn: []string{"TOTAL_DEBT", "EBITDA"},
				Formula:   Formula{Op: OpDivide, Left: "TOTAL_DEBT", Right: "EBITDA"},
			},
			{
				Key:       "DEBT_TO_EQUITY",
				DependsOn: []string{"TOTAL_DEBT", "TOTAL_EQUITY"},
				Formula:   Formula{Op: OpDivide, Left: "TOTAL_DEBT", Right: "TOTAL_EQUITY"},
			},
			{
				Key:       "WORKING_CAPITAL",
				DependsOn: []string{"TOTAL_CURRENT_ASSETS", "TOTAL_CURRENT_LIABILITIES"},
				Formula:   Formula{Op: OpSubtract, Left: "TOTAL_CURRENT_ASSETS", Right: "TOTAL_CURRENT_LIABILITIES"},
			},
			{
				Key:       "CURRENT_RATIO",
				DependsOn: []string{"TOTAL_CURRENT_ASSETS", "TOTAL_CURRENT_LIABILITIES"},
				Formula:   Formula{Op: OpDivide, Left: "TOTAL_CURRENT_ASSETS", Right: "TOTAL_CURRENT_LIABILITIES"},
			},
			{
				Key:       "NET_MARGIN",
				DependsOn: []string{"NET_INCOME", "TOTAL_REVENUE"},
				Formula:   Formula{Op: OpDivide, Left: "NET_INCOME", Right: "TOTAL_REVENUE"},
			},
			{
				Key:       "DSCR",
				DependsOn: []string{"CASH_AVAILABLE_FOR_DEBT_SERVICE", "TOTAL_DEBT_SERVICE"},
				Formula:   Formula{Op: OpDivide, Left: "CASH_AVAILABLE_FOR_DEBT_SERVICE", Right: "TOTAL_DEBT_SERVICE"},
			},
		},
	}
}
