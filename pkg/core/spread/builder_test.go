package spread

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"loan_spreading/pkg/core/canon"
	"loan_spreading/pkg/models"
)

func fact(factType, key string, value float64, periodEnd string) models.Fact {
	v := value
	return models.Fact{Type: factType, Key: key, Value: &v, PeriodEnd: periodEnd}
}

func nullFact(factType, key, periodEnd string) models.Fact {
	return models.Fact{Type: factType, Key: key, Value: nil, PeriodEnd: periodEnd}
}

func TestBuildSingleFiscalYearEBITDA(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "COST_OF_GOODS_SOLD", 400000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "TOTAL_OPERATING_EXPENSES", 200000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "DEPRECIATION", 50000, "2025-12-31"),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-100", facts)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(model.Periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(model.Periods))
	}

	p := model.Periods[0]
	if p.PeriodType != models.PeriodTypeFiscalYearEnd {
		t.Errorf("December close should classify as FYE, got %s", p.PeriodType)
	}
	ebitda, ok := p.Income["EBITDA"]
	if !ok {
		t.Fatal("EBITDA not derived")
	}
	if math.Abs(ebitda-450000) > 1e-9 {
		t.Errorf("EBITDA = %v, want 450000", ebitda)
	}
}

func TestBuildFiltersUnusableFacts(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 900000, "2024-12-31"),
		nullFact(models.FactTypeIncomeStatement, "NET_INCOME", "2024-12-31"),          // null value
		fact(models.FactTypeIncomeStatement, "NET_INCOME", 120000, "not-a-date"),      // unparseable date
		fact(models.FactTypeIncomeStatement, "TAX_EXPENSE", 40000, "1900-01-01"),      // sentinel date
		fact(models.FactTypeIncomeStatement, "INTEREST_EXPENSE", 30000, "1975-12-31"), // before cutoff
		fact("LOAN_COVENANT", "TOTAL_REVENUE", 111111, "2024-12-31"),                  // irrelevant type
		fact(models.FactTypeIncomeStatement, "MYSTERY_LINE", 5, "2024-12-31"),         // unmapped key
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-101", facts)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(model.Periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(model.Periods))
	}

	p := model.Periods[0]
	if len(p.Income) != 2 { // TOTAL_REVENUE plus derived EBITDA
		t.Errorf("income sub-record should hold revenue and derived EBITDA only, got %v", p.Income)
	}
	if _, ok := p.Income["NET_INCOME"]; ok {
		t.Error("facts with null values or bad dates must not reach the model")
	}
}

func TestBuildGroupsAndSortsPeriods(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1200000, "2024-12-31"),
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 800000, "2022-12-31"),
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2023-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 5000000, "2024-12-31"),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-102", facts)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.Periods) != 3 {
		t.Fatalf("expected 3 periods, got %d", len(model.Periods))
	}
	for i := 1; i < len(model.Periods); i++ {
		if !model.Periods[i-1].PeriodEnd.Before(model.Periods[i].PeriodEnd) {
			t.Errorf("periods not ascending at index %d", i)
		}
	}
	if model.Periods[2].Balance["TOTAL_ASSETS"] != 5000000 {
		t.Error("balance fact landed in the wrong period")
	}
}

func TestBuildClassifiesInterimPeriods(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 500000, "2025-06-30"),
	}
	model, err := NewBuilder(DefaultConfig()).Build("D-103", facts)
	if err != nil {
		t.Fatal(err)
	}
	if got := model.Periods[0].PeriodType; got != models.PeriodTypeYearToDate {
		t.Errorf("June close should classify as YTD, got %s", got)
	}
}

func TestBuildSentinelPromotion(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2024-12-31"),
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1500000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 4000000, "2025-12-31"),
		// Undated current pass: wider extraction, no period date.
		fact(models.FactTypeCurrentFinancials, "TOTAL_ASSETS", 4250000, ""),
		fact(models.FactTypeCurrentFinancials, "TOTAL_LIABILITIES", 1250000, ""),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-104", facts)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.Periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(model.Periods))
	}

	latest := model.LatestPeriod()
	if latest.PeriodEnd.Year() != 2025 {
		t.Fatalf("latest period should be 2025, got %v", latest.PeriodEnd)
	}
	// The undated pass overwrites the narrower dated value and fills gaps.
	if latest.Balance["TOTAL_ASSETS"] != 4250000 {
		t.Errorf("current-pass assets should win the collision, got %v", latest.Balance["TOTAL_ASSETS"])
	}
	if latest.Balance["TOTAL_LIABILITIES"] != 1250000 {
		t.Error("current-pass liabilities missing from latest period")
	}
	// The earlier period must be untouched.
	if _, ok := model.Periods[0].Balance["TOTAL_ASSETS"]; ok {
		t.Error("promotion leaked onto a non-latest period")
	}
}

func TestBuildUndatedFactsWithoutRealPeriodAreDropped(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeCurrentFinancials, "TOTAL_ASSETS", 4250000, ""),
	}
	model, err := NewBuilder(DefaultConfig()).Build("D-105", facts)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.Periods) != 0 {
		t.Errorf("no real period means nothing to attach to, got %d periods", len(model.Periods))
	}
}

func TestBuildEquityPlugAndDebtService(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 2000000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "COST_OF_GOODS_SOLD", 800000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 5000000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_LIABILITIES", 3100000, "2025-12-31"),
		fact(models.FactTypeCashFlow, "CAPITAL_EXPENDITURES", 150000, "2025-12-31"),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-106", facts)
	if err != nil {
		t.Fatal(err)
	}
	p := model.Periods[0]

	if got := p.Balance["TOTAL_EQUITY"]; math.Abs(got-1900000) > 1e-9 {
		t.Errorf("equity plug = %v, want 1900000", got)
	}
	// EBITDA derives to 1.2M (no opex or depreciation observed), CAFDS nets capex.
	if got := p.CashFlow["CASH_AVAILABLE_FOR_DEBT_SERVICE"]; math.Abs(got-1050000) > 1e-9 {
		t.Errorf("cash available for debt service = %v, want 1050000", got)
	}
}

func TestBuildDerivationNeverOverwritesExtractedValues(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 5000000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_LIABILITIES", 3000000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_EQUITY", 1990000, "2025-12-31"),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-107", facts)
	if err != nil {
		t.Fatal(err)
	}
	if got := model.Periods[0].Balance["TOTAL_EQUITY"]; got != 1990000 {
		t.Errorf("extracted equity replaced by plug: %v", got)
	}
}

func TestBuildQualityFlags(t *testing.T) {
	tests := []struct {
		name     string
		facts    []models.Fact
		wantFlag string
	}{
		{
			name: "balance sheet imbalance",
			facts: []models.Fact{
				fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1, "2025-12-31"),
				fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 3000000, "2025-12-31"),
				fact(models.FactTypeBalanceSheet, "TOTAL_LIABILITIES", 1000000, "2025-12-31"),
				fact(models.FactTypeBalanceSheet, "TOTAL_EQUITY", 1500000, "2025-12-31"),
			},
			wantFlag: models.FlagBalanceSheetImbalance,
		},
		{
			name: "negative revenue",
			facts: []models.Fact{
				fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", -250000, "2025-12-31"),
				fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 1000000, "2025-12-31"),
			},
			wantFlag: models.FlagNegativeRevenue,
		},
		{
			name: "missing revenue",
			facts: []models.Fact{
				fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 1000000, "2025-12-31"),
			},
			wantFlag: models.FlagMissingRevenue,
		},
		{
			name: "missing total assets",
			facts: []models.Fact{
				fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2025-12-31"),
			},
			wantFlag: models.FlagMissingTotalAssets,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := NewBuilder(DefaultConfig()).Build("D-108", tt.facts)
			if err != nil {
				t.Fatal(err)
			}
			if !model.Periods[0].HasFlag(tt.wantFlag) {
				t.Errorf("expected flag %s, got %v", tt.wantFlag, model.Periods[0].Flags)
			}
		})
	}
}

func TestBuildConfidenceWinsCollisions(t *testing.T) {
	low := 0.4
	high := 0.9
	facts := []models.Fact{
		{Type: models.FactTypeIncomeStatement, Key: "TOTAL_REVENUE", Value: fptr(1000000), PeriodEnd: "2025-12-31", Confidence: &high},
		{Type: models.FactTypeIncomeStatement, Key: "TOTAL_REVENUE", Value: fptr(999), PeriodEnd: "2025-12-31", Confidence: &low},
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-109", facts)
	if err != nil {
		t.Fatal(err)
	}
	if got := model.Periods[0].Income["TOTAL_REVENUE"]; got != 1000000 {
		t.Errorf("lower-confidence fact overwrote higher: %v", got)
	}
}

func TestBuildAliasKeysCollapse(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "REVENUE", 750000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "NET_WORTH", 250000, "2025-12-31"),
		fact(models.FactTypeCashFlow, "CAPEX", 50000, "2025-12-31"),
	}

	model, err := NewBuilder(DefaultConfig()).Build("D-110", facts)
	if err != nil {
		t.Fatal(err)
	}
	p := model.Periods[0]
	if p.Income["TOTAL_REVENUE"] != 750000 {
		t.Error("REVENUE alias did not land on TOTAL_REVENUE")
	}
	if p.Balance["TOTAL_EQUITY"] != 250000 {
		t.Error("NET_WORTH alias did not land on TOTAL_EQUITY")
	}
	if p.CashFlow["CAPITAL_EXPENDITURES"] != 50000 {
		t.Error("CAPEX alias did not land on CAPITAL_EXPENDITURES")
	}
}

// For a fixed fact set the built model must hash identically run over run,
// and shuffling the input order must not change the digest.
func TestBuildHashDeterminism(t *testing.T) {
	facts := []models.Fact{
		fact(models.FactTypeIncomeStatement, "TOTAL_REVENUE", 1000000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "COST_OF_GOODS_SOLD", 400000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "TOTAL_OPERATING_EXPENSES", 200000, "2025-12-31"),
		fact(models.FactTypeIncomeStatement, "DEPRECIATION", 50000, "2025-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_ASSETS", 3000000, "2024-12-31"),
		fact(models.FactTypeBalanceSheet, "TOTAL_LIABILITIES", 1000000, "2024-12-31"),
		fact(models.FactTypeCashFlow, "CAPITAL_EXPENDITURES", 90000, "2025-12-31"),
		fact(models.FactTypeCurrentFinancials, "ACCOUNTS_RECEIVABLE", 333000, ""),
	}

	builder := NewBuilder(DefaultConfig())

	first, err := builder.Build("D-111", facts)
	if err != nil {
		t.Fatal(err)
	}
	h1, err := canon.Hash(first)
	if err != nil {
		t.Fatal(err)
	}

	again, err := builder.Build("D-111", facts)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := canon.Hash(again)
	if h1 != h2 {
		t.Errorf("rebuild changed the digest: %s vs %s", h1, h2)
	}

	shuffled := make([]models.Fact, len(facts))
	copy(shuffled, facts)
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	reshuffledModel, err := builder.Build("D-111", shuffled)
	if err != nil {
		t.Fatal(err)
	}
	h3, _ := canon.Hash(reshuffledModel)
	if h1 != h3 {
		t.Errorf("input order changed the digest: %s vs %s", h1, h3)
	}
}

func TestParsePeriodEnd(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		year int
	}{
		{"2025-12-31", true, 2025},
		{"2025-12-31T00:00:00Z", true, 2025},
		{"06/30/2025", true, 2025},
		{"", false, 0},
		{"garbage", false, 0},
		{"1900-01-01", false, 0},
		{"9999-12-31", false, 0},
		{"1979-12-31", false, 0},
	}
	for _, tt := range tests {
		got, ok := parsePeriodEnd(tt.raw, 1980)
		if ok != tt.ok {
			t.Errorf("parsePeriodEnd(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && got.Year() != tt.year {
			t.Errorf("parsePeriodEnd(%q) year = %d, want %d", tt.raw, got.Year(), tt.year)
		}
	}
}

func fptr(v float64) *float64 { return &v }
