// Package validate provides model quality checks shared by the builder,
// the pipeline's strict mode, and tests.
package validate

import (
	"fmt"
	"math"

	"loan_spreading/pkg/models"
)

// =============================================================================
// BALANCE SHEET EQUATION
// =============================================================================

// BalanceCheck verifies Assets = Liabilities + Equity.
type BalanceCheck struct {
	TotalAssets      float64
	TotalLiabilities float64
	TotalEquity      float64
	ComputedAssets   float64 // L + E
	Difference       float64
	IsBalanced       bool
	Tolerance        float64
}

// CheckBalanceEquation validates A = L + E within tolerance.
func CheckBalanceEquation(assets, liabilities, equity, tolerance float64) *BalanceCheck {
	computed := liabilities + equity
	diff := assets - computed

	return &BalanceCheck{
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
		TotalEquity:      equity,
		ComputedAssets:   computed,
		Difference:       diff,
		IsBalanced:       math.Abs(diff) <= tolerance,
		Tolerance:        tolerance,
	}
}

// =============================================================================
// CASH FLOW EQUATION
// =============================================================================

// CashFlowCheck verifies CFO + CFI + CFF = Net Change in Cash.
type CashFlowCheck struct {
	CFO           float64
	CFI           float64
	CFF           float64
	ComputedTotal float64
	ReportedTotal float64
	Difference    float64
	IsBalanced    bool
	Tolerance     float64
}

// CheckCashFlowEquation validates CFO + CFI + CFF = Net Change.
func CheckCashFlowEquation(cfo, cfi, cff, reportedNetChange, tolerance float64) *CashFlowCheck {
	computed := cfo + cfi + cff
	diff := reportedNetChange - computed

	return &CashFlowCheck{
		CFO:           cfo,
		CFI:           cfi,
		CFF:           cff,
		ComputedTotal: computed,
		ReportedTotal: reportedNetChange,
		Difference:    diff,
		IsBalanced:    math.Abs(diff) <= tolerance,
		Tolerance:     tolerance,
	}
}

// =============================================================================
// PERIOD-OVER-PERIOD MOVEMENT
// =============================================================================

// CalculateChange returns the percentage change from prior to current.
func CalculateChange(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1) // growth from zero
	}
	return (current - prior) / prior * 100
}

// OutlierCheck identifies suspicious period-over-period values.
type OutlierCheck struct {
	Item       string
	Value      float64
	PriorValue float64
	ChangePct  float64
	IsOutlier  bool
	Reason     string
	Threshold  float64
}

// CheckForOutlier flags a value whose movement against the prior period
// looks like extraction damage rather than business reality.
func CheckForOutlier(item string, current, prior, thresholdPct float64) *OutlierCheck {
	changePct := CalculateChange(current, prior)

	check := &OutlierCheck{
		Item:       item,
		Value:      current,
		PriorValue: prior,
		ChangePct:  changePct,
		Threshold:  thresholdPct,
		IsOutlier:  false,
	}

	// Zero when the prior period was non-zero (likely extraction error)
	if current == 0 && prior > 0 {
		check.IsOutlier = true
		check.Reason = "Value dropped to zero (likely extraction error)"
		return check
	}

	if math.Abs(changePct) > thresholdPct {
		check.IsOutlier = true
		check.Reason = fmt.Sprintf("Change of %.1f%% exceeds threshold of %.1f%%", changePct, thresholdPct)
		return check
	}

	return check
}

// =============================================================================
// MODEL-LEVEL QC
// =============================================================================

// ModelIssue is one advisory finding from a full-model sweep. Issues never
// fail a build; strict pipeline runs log them.
type ModelIssue struct {
	PeriodEnd string `json:"period_end"`
	Item      string `json:"item"`
	Message   string `json:"message"`
}

// trackedItems are the lines swept for period-over-period outliers.
var trackedItems = []string{"TOTAL_REVENUE", "NET_INCOME", "TOTAL_ASSETS", "TOTAL_EQUITY"}

// CheckModel sweeps a built model for cross-period anomalies: extraction
// zero-drops, extreme movements, and cash flow statements that do not tie
// to the change in cash.
func CheckModel(m *models.FinancialModel, outlierThresholdPct float64) []ModelIssue {
	var issues []ModelIssue

	for i, p := range m.Periods {
		endKey := p.PeriodEnd.Format("2006-01-02")

		if i > 0 {
			prior := m.Periods[i-1]
			for _, item := range trackedItems {
				cur, okCur := p.Lookup(item)
				prev, okPrev := prior.Lookup(item)
				if !okCur || !okPrev {
					continue
				}
				if check := CheckForOutlier(item, cur, prev, outlierThresholdPct); check.IsOutlier {
					issues = append(issues, ModelIssue{PeriodEnd: endKey, Item: item, Message: check.Reason})
				}
			}

			// Cash flow tie-out: CFO + CFI + CFF against the movement in cash.
			cfo, okO := p.CashFlow["NET_CASH_OPERATING"]
			cfi, okI := p.CashFlow["NET_CASH_INVESTING"]
			cff, okF := p.CashFlow["NET_CASH_FINANCING"]
			curCash, okC := p.Balance["CASH_AND_EQUIVALENTS"]
			prevCash, okPC := prior.Balance["CASH_AND_EQUIVALENTS"]
			if okO && okI && okF && okC && okPC {
				check := CheckCashFlowEquation(cfo, cfi, cff, curCash-prevCash, 1.00)
				if !check.IsBalanced {
					issues = append(issues, ModelIssue{
						PeriodEnd: endKey,
						Item:      "CASH_FLOW_TIE",
						Message:   fmt.Sprintf("cash flow statement off by %.2f against cash movement", check.Difference),
					})
				}
			}
		}
	}

	return issues
}
