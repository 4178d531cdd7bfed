package parity

import (
	"fmt"
	"sort"
	"time"

	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/models"
)

// Side is the shared intermediate shape both renderings are normalized
// into before comparison. The comparator never knows which renderer
// produced a value.
type Side struct {
	Name    string       `json:"name"`
	Periods []SidePeriod `json:"periods"`
}

// SidePeriod is one discrete period's canonical values on one side.
type SidePeriod struct {
	End    time.Time           `json:"end"`
	Label  string              `json:"label"`
	Values map[string]*float64 `json:"values"`
}

// FromModel adapts a built model plus its evaluated metrics. Statement
// values win over evaluated metrics on the same key, since they came
// straight from facts.
func FromModel(model *models.FinancialModel, metricsByPeriod map[string]map[string]*float64) Side {
	side := Side{Name: "model"}
	for _, p := range model.Periods {
		endKey := p.PeriodEnd.Format("2006-01-02")
		sp := SidePeriod{
			End:    p.PeriodEnd,
			Label:  fmt.Sprintf("%s %s", p.PeriodType, endKey),
			Values: make(map[string]*float64, len(CanonicalKeys)),
		}
		for _, key := range CanonicalKeys {
			if v, ok := p.Lookup(key); ok {
				vv := v
				sp.Values[key] = &vv
				continue
			}
			if periodMetrics, ok := metricsByPeriod[endKey]; ok {
				if v, ok := periodMetrics[key]; ok && v != nil {
					vv := *v
					sp.Values[key] = &vv
				}
			}
		}
		side.Periods = append(side.Periods, sp)
	}
	return side
}

// FromLegacy adapts a legacy statement export. Aggregate columns and
// undatable columns never become periods; header rows and unmapped rows
// never become values. Statement order does not matter: values merge by
// period end date.
func FromLegacy(stmts []legacy.Statement) Side {
	side := Side{Name: "legacy"}
	byEnd := make(map[string]*SidePeriod)

	for _, stmt := range stmts {
		for _, col := range stmt.Columns {
			if legacy.IsAggregate(col) {
				continue
			}
			end, ok := legacy.ColumnPeriodEnd(col)
			if !ok {
				continue
			}
			endKey := end.Format("2006-01-02")
			sp, exists := byEnd[endKey]
			if !exists {
				sp = &SidePeriod{End: end, Label: col.Label, Values: make(map[string]*float64)}
				byEnd[endKey] = sp
			}

			for _, row := range stmt.Rows {
				if row.Header {
					continue
				}
				key := legacy.CanonicalRowKey(row)
				if key == "" || !isCanonicalKey(key) {
					continue
				}
				if v := row.Value(col.Key); v != nil {
					vv := *v
					sp.Values[key] = &vv
				}
			}
		}
	}

	for _, sp := range byEnd {
		side.Periods = append(side.Periods, *sp)
	}
	sort.Slice(side.Periods, func(i, j int) bool {
		return side.Periods[i].End.Before(side.Periods[j].End)
	})
	return side
}

func isCanonicalKey(key string) bool {
	_, ok := keyCategories[key]
	return ok
}
