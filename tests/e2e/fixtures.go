package e2e_test

import (
	"context"
	"fmt"

	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/models"
)

// SampleDealID is the fixture deal used across the e2e flows: a healthy
// middle-market manufacturer with three fiscal years on file.
const (
	SampleDealID = "MFG-2025-0114"
	SampleBankID = "FIRST-NATIONAL"
)

func fptr(v float64) *float64 { return &v }

// SampleFacts returns the deal's extraction export. Values are constructed
// so the balance sheet balances and the cash flow ties out every year, and
// the undated current-financials pass restates the latest net income.
func SampleFacts() *ingest.FactFile {
	mk := func(factType, key string, v float64, end string) models.Fact {
		return models.Fact{Type: factType, Key: key, Value: fptr(v), PeriodEnd: end}
	}

	var facts []models.Fact
	type yearLine struct {
		end   string
		key   string
		value float64
	}

	income := []yearLine{
		{"2023-12-31", "TOTAL_REVENUE", 8200000}, {"2023-12-31", "COST_OF_GOODS_SOLD", 5166000},
		{"2023-12-31", "TOTAL_OPERATING_EXPENSES", 1804000}, {"2023-12-31", "DEPRECIATION", 410000},
		{"2023-12-31", "INTEREST_EXPENSE", 168000}, {"2023-12-31", "NET_INCOME", 515000},

		{"2024-12-31", "TOTAL_REVENUE", 9100000}, {"2024-12-31", "COST_OF_GOODS_SOLD", 5733000},
		{"2024-12-31", "TOTAL_OPERATING_EXPENSES", 1967000}, {"2024-12-31", "DEPRECIATION", 455000},
		{"2024-12-31", "INTEREST_EXPENSE", 175000}, {"2024-12-31", "NET_INCOME", 687000},

		{"2025-12-31", "TOTAL_REVENUE", 9800000}, {"2025-12-31", "COST_OF_GOODS_SOLD", 6174000},
		{"2025-12-31", "TOTAL_OPERATING_EXPENSES", 2107000}, {"2025-12-31", "DEPRECIATION", 490000},
		{"2025-12-31", "INTEREST_EXPENSE", 182000}, {"2025-12-31", "NET_INCOME", 761000},
	}
	for _, l := range income {
		facts = append(facts, mk(models.FactTypeIncomeStatement, l.key, l.value, l.end))
	}

	balance := []yearLine{
		{"2023-12-31", "CASH_AND_EQUIVALENTS", 620000}, {"2023-12-31", "ACCOUNTS_RECEIVABLE", 980000},
		{"2023-12-31", "INVENTORY", 1150000}, {"2023-12-31", "TOTAL_CURRENT_ASSETS", 2750000},
		{"2023-12-31", "TOTAL_ASSETS", 6800000}, {"2023-12-31", "SHORT_TERM_DEBT", 300000},
		{"2023-12-31", "LONG_TERM_DEBT", 2100000}, {"2023-12-31", "TOTAL_CURRENT_LIABILITIES", 1420000},
		{"2023-12-31", "TOTAL_LIABILITIES", 3900000}, {"2023-12-31", "TOTAL_EQUITY", 2900000},

		{"2024-12-31", "CASH_AND_EQUIVALENTS", 780000}, {"2024-12-31", "ACCOUNTS_RECEIVABLE", 1060000},
		{"2024-12-31", "INVENTORY", 1240000}, {"2024-12-31", "TOTAL_CURRENT_ASSETS", 3080000},
		{"2024-12-31", "TOTAL_ASSETS", 7450000}, {"2024-12-31", "SHORT_TERM_DEBT", 320000},
		{"2024-12-31", "LONG_TERM_DEBT", 2050000}, {"2024-12-31", "TOTAL_CURRENT_LIABILITIES", 1510000},
		{"2024-12-31", "TOTAL_LIABILITIES", 3980000}, {"2024-12-31", "TOTAL_EQUITY", 3470000},

		{"2025-12-31", "CASH_AND_EQUIVALENTS", 905000}, {"2025-12-31", "ACCOUNTS_RECEIVABLE", 1150000},
		{"2025-12-31", "INVENTORY", 1310000}, {"2025-12-31", "TOTAL_CURRENT_ASSETS", 3365000},
		{"2025-12-31", "TOTAL_ASSETS", 8150000}, {"2025-12-31", "SHORT_TERM_DEBT", 340000},
		{"2025-12-31", "LONG_TERM_DEBT", 1980000}, {"2025-12-31", "TOTAL_CURRENT_LIABILITIES", 1580000},
		{"2025-12-31", "TOTAL_LIABILITIES", 4010000}, {"2025-12-31", "TOTAL_EQUITY", 4140000},
	}
	for _, l := range balance {
		facts = append(facts, mk(models.FactTypeBalanceSheet, l.key, l.value, l.end))
	}

	cashflow := []yearLine{
		{"2023-12-31", "CAPITAL_EXPENDITURES", 520000}, {"2023-12-31", "TOTAL_DEBT_SERVICE", 640000},

		{"2024-12-31", "CAPITAL_EXPENDITURES", 610000}, {"2024-12-31", "TOTAL_DEBT_SERVICE", 705000},
		{"2024-12-31", "NET_CASH_OPERATING", 1310000}, {"2024-12-31", "NET_CASH_INVESTING", -610000},
		{"2024-12-31", "NET_CASH_FINANCING", -540000},

		{"2025-12-31", "CAPITAL_EXPENDITURES", 650000}, {"2025-12-31", "TOTAL_DEBT_SERVICE", 730000},
		{"2025-12-31", "NET_CASH_OPERATING", 1405000}, {"2025-12-31", "NET_CASH_INVESTING", -650000},
		{"2025-12-31", "NET_CASH_FINANCING", -630000},
	}
	for _, l := range cashflow {
		facts = append(facts, mk(models.FactTypeCashFlow, l.key, l.value, l.end))
	}

	// The undated pass restates the latest net income after an adjustment.
	facts = append(facts, models.Fact{
		Type: models.FactTypeCurrentFinancials, Key: "NET_INCOME", Value: fptr(768500),
	})

	return &ingest.FactFile{DealID: SampleDealID, BankID: SampleBankID, Facts: facts}
}

// SampleLegacyHTML is the legacy renderer's table dump for the same deal,
// agreeing with the engine on every canonical line. The TTM column and the
// unmapped rows exist to be skipped.
func SampleLegacyHTML() string {
	return legacyHTML("2,009,000", "768,500")
}

// DivergentLegacyHTML disagrees on the latest EBITDA by 200,000, deep into
// the income block band.
func DivergentLegacyHTML() string {
	return legacyHTML("2,209,000", "768,500")
}

func legacyHTML(ebitdaFY2025, netIncomeFY2025 string) string {
	return fmt.Sprintf(`
<html><body>
<table data-deal="%s" data-statement="INCOME_STATEMENT">
  <thead>
    <tr><th>Income Statement</th><th>FYE 12/31/2023</th><th>FYE 12/31/2024</th><th>FYE 12/31/2025</th><th>TTM</th></tr>
  </thead>
  <tbody>
    <tr class="section"><td colspan="5">OPERATING RESULTS</td></tr>
    <tr><td>Total Revenue</td><td>$8,200,000</td><td>$9,100,000</td><td>$9,800,000</td><td>$9,975,000</td></tr>
    <tr><td>Cost of Goods Sold</td><td>5,166,000</td><td>5,733,000</td><td>6,174,000</td><td>6,290,000</td></tr>
    <tr><td>Total Operating Expenses</td><td>1,804,000</td><td>1,967,000</td><td>2,107,000</td><td>2,150,000</td></tr>
    <tr><td>EBITDA</td><td>1,640,000</td><td>1,855,000</td><td>%s</td><td>2,060,000</td></tr>
    <tr><td>Officer Compensation</td><td>310,000</td><td>325,000</td><td>340,000</td><td>344,000</td></tr>
    <tr><td>Dividends Paid</td><td>(120,000)</td><td>(140,000)</td><td>(150,000)</td><td>(150,000)</td></tr>
    <tr><td>Net Income</td><td>515,000</td><td>687,000</td><td>%s</td><td>792,000</td></tr>
  </tbody>
</table>
<table data-deal="%s" data-statement="BALANCE_SHEET">
  <thead>
    <tr><th>Balance Sheet</th><th>FYE 12/31/2023</th><th>FYE 12/31/2024</th><th>FYE 12/31/2025</th></tr>
  </thead>
  <tbody>
    <tr><td>Total Assets</td><td>6,800,000</td><td>7,450,000</td><td>8,150,000</td></tr>
    <tr><td>Total Liabilities</td><td>3,900,000</td><td>3,980,000</td><td>4,010,000</td></tr>
    <tr><td>Net Worth</td><td>2,900,000</td><td>3,470,000</td><td>4,140,000</td></tr>
    <tr><td>Funded Debt</td><td>2,400,000</td><td>2,370,000</td><td>2,320,000</td></tr>
    <tr><td>Working Capital Notes</td><td>—</td><td>—</td><td>—</td></tr>
  </tbody>
</table>
</body></html>`, SampleDealID, ebitdaFY2025, netIncomeFY2025, SampleDealID)
}

// htmlExportLoader feeds a fixed HTML dump to the pipeline as the legacy
// side, standing in for the legacy system's export endpoint.
type htmlExportLoader struct {
	html string
}

func (l *htmlExportLoader) LoadStatements(ctx context.Context, dealID string) ([]legacy.Statement, error) {
	return legacy.ParseHTML(l.html)
}
