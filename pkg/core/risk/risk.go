// Package risk derives deal-level credit risk flags from a built financial
// model and its evaluated metrics. Flags are advisory inputs to the snapshot
// audit record and to downstream policy engines; nothing here blocks a
// computation.
package risk

import (
	"fmt"
	"sort"

	"loan_spreading/pkg/models"
)

// Deal-level flags produced by Assess.
const (
	FlagHighLeverage   = "HIGH_LEVERAGE"
	FlagLowCoverage    = "LOW_DEBT_SERVICE_COVERAGE"
	FlagNegativeEquity = "NEGATIVE_EQUITY"
	FlagWeakLiquidity  = "WEAK_LIQUIDITY"
	FlagRevenueDecline = "REVENUE_DECLINE"
	FlagOperatingLoss  = "OPERATING_LOSS"
)

// Policy holds the screening thresholds. Values are plain data so callers
// can load them from config; the zero value is replaced by DefaultPolicy.
type Policy struct {
	// MaxLeverage flags debt/EBITDA above this multiple.
	MaxLeverage float64 `yaml:"max_leverage" json:"max_leverage"`
	// MinDSCR flags debt service coverage below this multiple.
	MinDSCR float64 `yaml:"min_dscr" json:"min_dscr"`
	// MinCurrentRatio flags current ratios below this level.
	MinCurrentRatio float64 `yaml:"min_current_ratio" json:"min_current_ratio"`
	// RevenueDeclinePct flags a year-over-year revenue drop beyond this
	// percentage (positive number, e.g. 25 for -25%).
	RevenueDeclinePct float64 `yaml:"revenue_decline_pct" json:"revenue_decline_pct"`
}

// DefaultPolicy mirrors the credit team's standing screen levels.
func DefaultPolicy() Policy {
	return Policy{
		MaxLeverage:       6.0,
		MinDSCR:           1.2,
		MinCurrentRatio:   1.0,
		RevenueDeclinePct: 25,
	}
}

// Finding is one flagged condition with the evidence behind it.
type Finding struct {
	Flag      string  `json:"flag"`
	PeriodEnd string  `json:"period_end,omitempty"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail"`
}

// Engine screens a model against a policy.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine with the default policy.
func NewEngine() *Engine {
	return &Engine{policy: DefaultPolicy()}
}

// SetPolicy replaces the screening thresholds. Zero fields fall back to the
// defaults so a partial config never disables a screen silently.
func (e *Engine) SetPolicy(p Policy) {
	def := DefaultPolicy()
	if p.MaxLeverage == 0 {
		p.MaxLeverage = def.MaxLeverage
	}
	if p.MinDSCR == 0 {
		p.MinDSCR = def.MinDSCR
	}
	if p.MinCurrentRatio == 0 {
		p.MinCurrentRatio = def.MinCurrentRatio
	}
	if p.RevenueDeclinePct == 0 {
		p.RevenueDeclinePct = def.RevenueDeclinePct
	}
	e.policy = p
}

// Assess returns the deal's risk flags, sorted and de-duplicated: the
// point-in-time screens on the most recent period, the trend screens across
// consecutive periods, and a roll-up of the builder's quality flags.
// metricsByPeriod is keyed by period end date ("2006-01-02").
func (e *Engine) Assess(model *models.FinancialModel, metricsByPeriod map[string]map[string]*float64) []string {
	findings := e.AssessDetailed(model, metricsByPeriod)

	seen := make(map[string]bool, len(findings))
	var flags []string
	for _, f := range findings {
		if !seen[f.Flag] {
			seen[f.Flag] = true
			flags = append(flags, f.Flag)
		}
	}
	for _, p := range model.Periods {
		for _, qf := range p.Flags {
			if !seen[qf] {
				seen[qf] = true
				flags = append(flags, qf)
			}
		}
	}
	sort.Strings(flags)
	return flags
}

// AssessDetailed is Assess with the evidence attached, for reports.
func (e *Engine) AssessDetailed(model *models.FinancialModel, metricsByPeriod map[string]map[string]*float64) []Finding {
	if model == nil || len(model.Periods) == 0 {
		return nil
	}

	var findings []Finding
	latest := model.LatestPeriod()
	endKey := latest.PeriodEnd.Format("2006-01-02")
	latestMetrics := metricsByPeriod[endKey]

	metric := func(key string) (float64, bool) {
		if v, ok := latestMetrics[key]; ok && v != nil {
			return *v, true
		}
		if v, ok := latest.Lookup(key); ok {
			return v, true
		}
		return 0, false
	}

	// Point-in-time screens on the latest period.
	if lev, ok := metric("DEBT_TO_EBITDA"); ok && lev > e.policy.MaxLeverage {
		findings = append(findings, Finding{
			Flag: FlagHighLeverage, PeriodEnd: endKey, Value: lev, Threshold: e.policy.MaxLeverage,
			Detail: fmt.Sprintf("debt/EBITDA %.2fx exceeds %.2fx", lev, e.policy.MaxLeverage),
		})
	}
	if dscr, ok := metric("DSCR"); ok && dscr < e.policy.MinDSCR {
		findings = append(findings, Finding{
			Flag: FlagLowCoverage, PeriodEnd: endKey, Value: dscr, Threshold: e.policy.MinDSCR,
			Detail: fmt.Sprintf("debt service coverage %.2fx below %.2fx", dscr, e.policy.MinDSCR),
		})
	}
	if equity, ok := latest.Balance["TOTAL_EQUITY"]; ok && equity < 0 {
		findings = append(findings, Finding{
			Flag: FlagNegativeEquity, PeriodEnd: endKey, Value: equity,
			Detail: fmt.Sprintf("total equity is negative (%.2f)", equity),
		})
	}
	if cr, ok := metric("CURRENT_RATIO"); ok && cr < e.policy.MinCurrentRatio {
		findings = append(findings, Finding{
			Flag: FlagWeakLiquidity, PeriodEnd: endKey, Value: cr, Threshold: e.policy.MinCurrentRatio,
			Detail: fmt.Sprintf("current ratio %.2f below %.2f", cr, e.policy.MinCurrentRatio),
		})
	}
	if opInc, ok := metric("OPERATING_INCOME"); ok && opInc < 0 {
		findings = append(findings, Finding{
			Flag: FlagOperatingLoss, PeriodEnd: endKey, Value: opInc,
			Detail: fmt.Sprintf("operating income is negative (%.2f)", opInc),
		})
	}

	// Trend screens across consecutive periods.
	for i := 1; i < len(model.Periods); i++ {
		cur, prior := model.Periods[i], model.Periods[i-1]
		curRev, okCur := cur.Income["TOTAL_REVENUE"]
		priorRev, okPrior := prior.Income["TOTAL_REVENUE"]
		if !okCur || !okPrior || priorRev <= 0 {
			continue
		}
		declinePct := (priorRev - curRev) / priorRev * 100
		if declinePct > e.policy.RevenueDeclinePct {
			findings = append(findings, Finding{
				Flag:      FlagRevenueDecline,
				PeriodEnd: cur.PeriodEnd.Format("2006-01-02"),
				Value:     -declinePct,
				Threshold: e.policy.RevenueDeclinePct,
				Detail: fmt.Sprintf("revenue fell %.1f%% from %s to %s",
					declinePct, prior.PeriodEnd.Format("2006-01-02"), cur.PeriodEnd.Format("2006-01-02")),
			})
		}
	}

	return findings
}
