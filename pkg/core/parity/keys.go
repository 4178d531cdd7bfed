// Package parity aligns two independently produced renderings of the same
// deal and classifies every numeric difference. The comparator is pure: it
// never touches storage and never mutates either side.
package parity

// Threshold categories. Each category carries its own WARN and BLOCK levels.
const (
	CategoryIncome  = "income_statement"
	CategoryBalance = "balance_sheet"
	CategoryRatio   = "derived_ratio"
)

// CanonicalKeys is the frozen comparison dictionary: five income statement
// lines, four balance sheet lines, one derived leverage ratio. Changing it
// means changing the legacy label dictionary, the threshold config, and the
// report layout together.
var CanonicalKeys = []string{
	"TOTAL_REVENUE",
	"COST_OF_GOODS_SOLD",
	"TOTAL_OPERATING_EXPENSES",
	"EBITDA",
	"NET_INCOME",
	"TOTAL_ASSETS",
	"TOTAL_LIABILITIES",
	"TOTAL_EQUITY",
	"TOTAL_DEBT",
	"DEBT_TO_EBITDA",
}

var keyCategories = map[string]string{
	"TOTAL_REVENUE":            CategoryIncome,
	"COST_OF_GOODS_SOLD":       CategoryIncome,
	"TOTAL_OPERATING_EXPENSES": CategoryIncome,
	"EBITDA":                   CategoryIncome,
	"NET_INCOME":               CategoryIncome,
	"TOTAL_ASSETS":             CategoryBalance,
	"TOTAL_LIABILITIES":        CategoryBalance,
	"TOTAL_EQUITY":             CategoryBalance,
	"TOTAL_DEBT":               CategoryBalance,
	"DEBT_TO_EBITDA":           CategoryRatio,
}

// KeyCategory returns the threshold category for a canonical key.
func KeyCategory(key string) string {
	if cat, ok := keyCategories[key]; ok {
		return cat
	}
	return CategoryIncome
}

// DefaultHeadlineKeys are the metrics whose disagreement fails a run
// outright, regardless of per-cell verdicts.
var DefaultHeadlineKeys = []string{"TOTAL_REVENUE", "EBITDA", "NET_INCOME", "DEBT_TO_EBITDA"}
