// Package viewmodel flattens a financial model and its evaluated metrics
// into a renderer-neutral table shape: ordered period columns, statement
// sections, rows with one display-ready cell per column. The presentation
// layer consumes it without knowing which computation path produced it.
package viewmodel

import (
	"fmt"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"loan_spreading/pkg/models"
)

type ViewModel struct {
	DealID   string    `json:"deal_id"`
	Columns  []Column  `json:"columns"`
	Sections []Section `json:"sections"`
	Summary  Summary   `json:"summary"`
}

// Column is one period, keyed by its end date.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Section groups rows under a statement heading.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Row carries one cell per column, aligned by index.
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Cells []Cell `json:"cells"`
}

// Cell holds the raw value and its rendered string. A nil value renders
// as a blank marker, never as zero.
type Cell struct {
	Value   *float64 `json:"value"`
	Display string   `json:"display"`
}

// Summary is the roll-up the presentation layer shows in list views.
type Summary struct {
	PeriodCount  int `json:"period_count"`
	SectionCount int `json:"section_count"`
	RowCount     int `json:"row_count"`
	NonNullCells int `json:"non_null_cells"`
}

// Fixed row orders per section. Keys observed outside these lists append
// alphabetically so output stays deterministic.
var (
	incomeOrder = []string{
		"TOTAL_REVENUE", "COST_OF_GOODS_SOLD", "GROSS_PROFIT",
		"TOTAL_OPERATING_EXPENSES", "DEPRECIATION", "OPERATING_INCOME",
		"EBITDA", "NET_INCOME",
	}
	balanceOrder = []string{
		"CASH_AND_EQUIVALENTS", "TOTAL_CURRENT_ASSETS", "TOTAL_ASSETS",
		"SHORT_TERM_DEBT", "LONG_TERM_DEBT", "TOTAL_CURRENT_LIABILITIES",
		"TOTAL_LIABILITIES", "TOTAL_EQUITY",
	}
	cashflowOrder = []string{
		"CAPEX", "TOTAL_DEBT_SERVICE", "CASH_AVAILABLE_FOR_DEBT_SERVICE",
	}
	derivedOrder = []string{
		"GROSS_PROFIT", "OPERATING_INCOME", "TOTAL_DEBT", "WORKING_CAPITAL",
		"DEBT_TO_EBITDA", "DEBT_TO_EQUITY", "CURRENT_RATIO", "NET_MARGIN", "DSCR",
	}
)

// Metrics rendered as ratios instead of dollar amounts.
var ratioKeys = map[string]bool{
	"DEBT_TO_EBITDA": true,
	"DEBT_TO_EQUITY": true,
	"CURRENT_RATIO":  true,
	"NET_MARGIN":     true,
	"DSCR":           true,
}

var rowLabels = map[string]string{
	"TOTAL_REVENUE":                   "Total Revenue",
	"COST_OF_GOODS_SOLD":              "Cost of Goods Sold",
	"GROSS_PROFIT":                    "Gross Profit",
	"TOTAL_OPERATING_EXPENSES":        "Total Operating Expenses",
	"DEPRECIATION":                    "Depreciation & Amortization",
	"OPERATING_INCOME":                "Operating Income",
	"EBITDA":                          "EBITDA",
	"NET_INCOME":                      "Net Income",
	"CASH_AND_EQUIVALENTS":            "Cash & Equivalents",
	"TOTAL_CURRENT_ASSETS":            "Total Current Assets",
	"TOTAL_ASSETS":                    "Total Assets",
	"SHORT_TERM_DEBT":                 "Short-Term Debt",
	"LONG_TERM_DEBT":                  "Long-Term Debt",
	"TOTAL_CURRENT_LIABILITIES":       "Total Current Liabilities",
	"TOTAL_LIABILITIES":               "Total Liabilities",
	"TOTAL_EQUITY":                    "Total Equity",
	"CAPEX":                           "Capital Expenditures",
	"TOTAL_DEBT_SERVICE":              "Total Debt Service",
	"CASH_AVAILABLE_FOR_DEBT_SERVICE": "Cash Available for Debt Service",
	"TOTAL_DEBT":                      "Total Debt",
	"WORKING_CAPITAL":                 "Working Capital",
	"DEBT_TO_EBITDA":                  "Debt / EBITDA",
	"DEBT_TO_EQUITY":                  "Debt / Equity",
	"CURRENT_RATIO":                   "Current Ratio",
	"NET_MARGIN":                      "Net Margin",
	"DSCR":                            "Debt Service Coverage",
}

// FromModel builds the view model. metricsByPeriod is keyed by period end
// date ("2006-01-02"); evaluated metrics appear in a Derived Metrics
// section unless a statement already carries the same key.
func FromModel(model *models.FinancialModel, metricsByPeriod map[string]map[string]*float64) *ViewModel {
	vm := &ViewModel{DealID: model.DealID}

	for _, p := range model.Periods {
		key := p.PeriodEnd.Format("2006-01-02")
		vm.Columns = append(vm.Columns, Column{
			Key:   key,
			Label: fmt.Sprintf("%s %s", p.PeriodType, key),
		})
	}

	statementKeys := make(map[string]bool)
	addSection := func(title string, order []string, lookup func(p *models.FinancialPeriod) map[string]float64) {
		keys := orderedKeys(model, order, lookup)
		if len(keys) == 0 {
			return
		}
		section := Section{Title: title}
		for _, k := range keys {
			statementKeys[k] = true
			row := Row{Key: k, Label: labelFor(k)}
			for _, p := range model.Periods {
				if v, ok := lookup(p)[k]; ok {
					vv := v
					row.Cells = append(row.Cells, Cell{Value: &vv, Display: display(k, vv)})
				} else {
					row.Cells = append(row.Cells, Cell{Display: "—"})
				}
			}
			section.Rows = append(section.Rows, row)
		}
		vm.Sections = append(vm.Sections, section)
	}

	addSection("Income Statement", incomeOrder, func(p *models.FinancialPeriod) map[string]float64 { return p.Income })
	addSection("Balance Sheet", balanceOrder, func(p *models.FinancialPeriod) map[string]float64 { return p.Balance })
	addSection("Cash Flow", cashflowOrder, func(p *models.FinancialPeriod) map[string]float64 { return p.CashFlow })

	if derived := derivedSection(vm, metricsByPeriod, statementKeys); derived != nil {
		vm.Sections = append(vm.Sections, *derived)
	}

	vm.Summary.PeriodCount = len(vm.Columns)
	vm.Summary.SectionCount = len(vm.Sections)
	for _, s := range vm.Sections {
		vm.Summary.RowCount += len(s.Rows)
		for _, r := range s.Rows {
			for _, c := range r.Cells {
				if c.Value != nil {
					vm.Summary.NonNullCells++
				}
			}
		}
	}
	return vm
}

// derivedSection renders evaluated metrics the statements do not already
// show. A metric that is null in every period still gets a row: a blank
// line tells the reviewer the formula could not resolve.
func derivedSection(vm *ViewModel, metricsByPeriod map[string]map[string]*float64, statementKeys map[string]bool) *Section {
	observed := make(map[string]bool)
	for _, perPeriod := range metricsByPeriod {
		for k := range perPeriod {
			if !statementKeys[k] {
				observed[k] = true
			}
		}
	}
	if len(observed) == 0 {
		return nil
	}

	keys := sortWithOrder(observed, derivedOrder)
	section := &Section{Title: "Derived Metrics"}
	for _, k := range keys {
		row := Row{Key: k, Label: labelFor(k)}
		for _, col := range vm.Columns {
			var v *float64
			if perPeriod, ok := metricsByPeriod[col.Key]; ok {
				v = perPeriod[k]
			}
			if v != nil {
				vv := *v
				row.Cells = append(row.Cells, Cell{Value: &vv, Display: display(k, vv)})
			} else {
				row.Cells = append(row.Cells, Cell{Display: "—"})
			}
		}
		section.Rows = append(section.Rows, row)
	}
	return section
}

func orderedKeys(model *models.FinancialModel, order []string, lookup func(p *models.FinancialPeriod) map[string]float64) []string {
	observed := make(map[string]bool)
	for _, p := range model.Periods {
		for k := range lookup(p) {
			observed[k] = true
		}
	}
	return sortWithOrder(observed, order)
}

// sortWithOrder returns observed keys in the fixed order, unknown keys
// appended alphabetically.
func sortWithOrder(observed map[string]bool, order []string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, k := range order {
		if observed[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range observed {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func display(key string, v float64) string {
	if ratioKeys[key] {
		return fmt.Sprintf("%.2f", v)
	}
	return humanize.CommafWithDigits(v, 2)
}

func labelFor(key string) string {
	if label, ok := rowLabels[key]; ok {
		return label
	}
	words := strings.Split(strings.ToLower(key), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
