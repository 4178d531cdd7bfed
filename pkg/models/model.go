package models

import (
	"fmt"
	"sort"
	"time"
)

// Fact is one atomic observation from the extraction layer. Value and
// PeriodEnd arrive exactly as extracted; the builder decides what is usable.
type Fact struct {
	Type       string   `json:"type"`
	Key        string   `json:"key"`
	Value      *float64 `json:"value"`
	PeriodEnd  string   `json:"period_end"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Fact types emitted by the extraction passes.
const (
	FactTypeIncomeStatement = "INCOME_STATEMENT"
	FactTypeBalanceSheet    = "BALANCE_SHEET"
	FactTypeCashFlow        = "CASH_FLOW"

	// FactTypeCurrentFinancials is the undated "most recent statement" pass.
	// Its facts carry no period date and are promoted onto the latest real period.
	FactTypeCurrentFinancials = "CURRENT_FINANCIALS"
)

const (
	PeriodTypeFiscalYearEnd = "FYE"
	PeriodTypeYearToDate    = "YTD"
)

// Quality flags attached to periods by the builder's checks.
const (
	FlagBalanceSheetImbalance = "BALANCE_SHEET_IMBALANCE"
	FlagNegativeRevenue       = "NEGATIVE_REVENUE"
	FlagMissingRevenue        = "MISSING_REVENUE"
	FlagMissingTotalAssets    = "MISSING_TOTAL_ASSETS"
)

// FinancialPeriod is one fiscal snapshot for a deal. The three statement
// sub-records are sparse: a key that is absent was never observed, which is
// not the same thing as zero.
type FinancialPeriod struct {
	DealID     string             `json:"deal_id"`
	PeriodEnd  time.Time          `json:"period_end"`
	PeriodType string             `json:"period_type"`
	Income     map[string]float64 `json:"income_statement"`
	Balance    map[string]float64 `json:"balance_sheet"`
	CashFlow   map[string]float64 `json:"cash_flow"`
	Flags      []string           `json:"quality_flags"`
}

// PeriodID identifies the period within its deal. Two periods with the same
// id in one model is a builder defect.
func (p *FinancialPeriod) PeriodID() string {
	return fmt.Sprintf("%s:%s", p.DealID, p.PeriodEnd.Format("2006-01-02"))
}

// Statement returns the sub-record for a statement constant, or nil.
func (p *FinancialPeriod) Statement(factType string) map[string]float64 {
	switch factType {
	case FactTypeIncomeStatement:
		return p.Income
	case FactTypeBalanceSheet:
		return p.Balance
	case FactTypeCashFlow:
		return p.CashFlow
	}
	return nil
}

// Lookup finds a field across the three sub-records, income first. The bool
// reports presence so callers can distinguish missing from zero.
func (p *FinancialPeriod) Lookup(key string) (float64, bool) {
	if v, ok := p.Income[key]; ok {
		return v, true
	}
	if v, ok := p.Balance[key]; ok {
		return v, true
	}
	if v, ok := p.CashFlow[key]; ok {
		return v, true
	}
	return 0, false
}

// HasFlag reports whether a quality flag was raised on this period.
func (p *FinancialPeriod) HasFlag(flag string) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// FinancialModel is the canonical, hashable output of a build: every usable
// period for one deal, ascending by end date.
type FinancialModel struct {
	DealID  string             `json:"deal_id"`
	Periods []*FinancialPeriod `json:"periods"`
}

// SortPeriods orders the model ascending by period end date.
func (m *FinancialModel) SortPeriods() {
	sort.Slice(m.Periods, func(i, j int) bool {
		return m.Periods[i].PeriodEnd.Before(m.Periods[j].PeriodEnd)
	})
}

// LatestPeriod returns the most recent period, or nil for an empty model.
func (m *FinancialModel) LatestPeriod() *FinancialPeriod {
	if len(m.Periods) == 0 {
		return nil
	}
	return m.Periods[len(m.Periods)-1]
}

// PeriodByEnd finds the period with the given end date, or nil.
func (m *FinancialModel) PeriodByEnd(end time.Time) *FinancialPeriod {
	for _, p := range m.Periods {
		if p.PeriodEnd.Equal(end) {
			return p
		}
	}
	return nil
}
