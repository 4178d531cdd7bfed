// Package spread builds the normalized financial model for a deal from the
// raw facts the extraction layer produced. The build is pure: same facts in,
// same model out, no clock, no I/O.
package spread

import (
	"strings"
	"time"

	"loan_spreading/pkg/models"
)

// fieldMapping routes a fact key to its statement sub-record and canonical
// field name. Keys not in the dictionary are ignored by the builder.
type fieldMapping struct {
	Statement string
	Field     string
}

// fieldDictionary is the fixed fact-key dictionary. Aliases collapse the
// extraction layer's vocabulary onto one canonical field per concept.
var fieldDictionary = map[string]fieldMapping{
	// Income statement
	"TOTAL_REVENUE":             {models.FactTypeIncomeStatement, "TOTAL_REVENUE"},
	"REVENUE":                   {models.FactTypeIncomeStatement, "TOTAL_REVENUE"},
	"NET_SALES":                 {models.FactTypeIncomeStatement, "TOTAL_REVENUE"},
	"COST_OF_GOODS_SOLD":        {models.FactTypeIncomeStatement, "COST_OF_GOODS_SOLD"},
	"COGS":                      {models.FactTypeIncomeStatement, "COST_OF_GOODS_SOLD"},
	"GROSS_PROFIT":              {models.FactTypeIncomeStatement, "GROSS_PROFIT"},
	"TOTAL_OPERATING_EXPENSES":  {models.FactTypeIncomeStatement, "TOTAL_OPERATING_EXPENSES"},
	"OPERATING_EXPENSES":        {models.FactTypeIncomeStatement, "TOTAL_OPERATING_EXPENSES"},
	"DEPRECIATION":              {models.FactTypeIncomeStatement, "DEPRECIATION"},
	"DEPRECIATION_AMORTIZATION": {models.FactTypeIncomeStatement, "DEPRECIATION"},
	"INTEREST_EXPENSE":          {models.FactTypeIncomeStatement, "INTEREST_EXPENSE"},
	"TAX_EXPENSE":               {models.FactTypeIncomeStatement, "TAX_EXPENSE"},
	"NET_INCOME":                {models.FactTypeIncomeStatement, "NET_INCOME"},

	// Balance sheet
	"CASH_AND_EQUIVALENTS":      {models.FactTypeBalanceSheet, "CASH_AND_EQUIVALENTS"},
	"CASH":                      {models.FactTypeBalanceSheet, "CASH_AND_EQUIVALENTS"},
	"ACCOUNTS_RECEIVABLE":       {models.FactTypeBalanceSheet, "ACCOUNTS_RECEIVABLE"},
	"INVENTORY":                 {models.FactTypeBalanceSheet, "INVENTORY"},
	"TOTAL_CURRENT_ASSETS":      {models.FactTypeBalanceSheet, "TOTAL_CURRENT_ASSETS"},
	"TOTAL_ASSETS":              {models.FactTypeBalanceSheet, "TOTAL_ASSETS"},
	"ACCOUNTS_PAYABLE":          {models.FactTypeBalanceSheet, "ACCOUNTS_PAYABLE"},
	"TOTAL_CURRENT_LIABILITIES": {models.FactTypeBalanceSheet, "TOTAL_CURRENT_LIABILITIES"},
	"SHORT_TERM_DEBT":           {models.FactTypeBalanceSheet, "SHORT_TERM_DEBT"},
	"LONG_TERM_DEBT":            {models.FactTypeBalanceSheet, "LONG_TERM_DEBT"},
	"TOTAL_LIABILITIES":         {models.FactTypeBalanceSheet, "TOTAL_LIABILITIES"},
	"TOTAL_EQUITY":              {models.FactTypeBalanceSheet, "TOTAL_EQUITY"},
	"NET_WORTH":                 {models.FactTypeBalanceSheet, "TOTAL_EQUITY"},

	// Cash flow
	"CAPITAL_EXPENDITURES": {models.FactTypeCashFlow, "CAPITAL_EXPENDITURES"},
	"CAPEX":                {models.FactTypeCashFlow, "CAPITAL_EXPENDITURES"},
	"NET_CASH_OPERATING":   {models.FactTypeCashFlow, "NET_CASH_OPERATING"},
	"NET_CASH_INVESTING":   {models.FactTypeCashFlow, "NET_CASH_INVESTING"},
	"NET_CASH_FINANCING":   {models.FactTypeCashFlow, "NET_CASH_FINANCING"},
	"TOTAL_DEBT_SERVICE":   {models.FactTypeCashFlow, "TOTAL_DEBT_SERVICE"},
}

// relevantFactTypes are the extraction passes the builder consumes.
var relevantFactTypes = map[string]bool{
	models.FactTypeIncomeStatement:   true,
	models.FactTypeBalanceSheet:      true,
	models.FactTypeCashFlow:          true,
	models.FactTypeCurrentFinancials: true,
}

// undatedPassTypes are the passes that legitimately emit facts without a
// period date. Their facts ride on the most recent real period.
var undatedPassTypes = map[string]bool{
	models.FactTypeCurrentFinancials: true,
}

// sentinelDates are placeholder values extractors emit when a document had
// no usable date. They never identify a real period.
var sentinelDates = map[string]bool{
	"0001-01-01": true,
	"1900-01-01": true,
	"1970-01-01": true,
	"9999-12-31": true,
}

var periodEndLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"2006-01-02 15:04:05",
}

// parsePeriodEnd parses an extractor date string into a UTC calendar date.
// The bool is false for empty, unparseable, or sentinel dates and for years
// before the configured cutoff.
func parsePeriodEnd(raw string, yearCutoff int) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range periodEndLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if sentinelDates[day.Format("2006-01-02")] {
			return time.Time{}, false
		}
		if day.Year() < yearCutoff {
			return time.Time{}, false
		}
		return day, true
	}
	return time.Time{}, false
}

// classifyPeriod types a period off its end month: December closes a fiscal
// year, anything else is a trailing or year-to-date cut.
func classifyPeriod(end time.Time) string {
	if end.Month() == time.December {
		return models.PeriodTypeFiscalYearEnd
	}
	return models.PeriodTypeYearToDate
}
