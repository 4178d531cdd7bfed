package validate

import (
	"math"
	"testing"
	"time"

	"loan_spreading/pkg/models"
)

func TestCheckBalanceEquation(t *testing.T) {
	tests := []struct {
		name        string
		assets      float64
		liabilities float64
		equity      float64
		tolerance   float64
		wantBalance bool
	}{
		{
			name:        "clean balance",
			assets:      3000000,
			liabilities: 1000000,
			equity:      2000000,
			tolerance:   1.00,
			wantBalance: true,
		},
		{
			name:        "half million hole",
			assets:      3000000,
			liabilities: 1000000,
			equity:      1500000,
			tolerance:   1.00,
			wantBalance: false,
		},
		{
			name:        "rounding slack inside tolerance",
			assets:      1000000.75,
			liabilities: 600000,
			equity:      400000,
			tolerance:   1.00,
			wantBalance: true,
		},
		{
			name:        "just outside tolerance",
			assets:      1000001.01,
			liabilities: 600000,
			equity:      400000,
			tolerance:   1.00,
			wantBalance: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CheckBalanceEquation(tt.assets, tt.liabilities, tt.equity, tt.tolerance)
			if check.IsBalanced != tt.wantBalance {
				t.Errorf("IsBalanced = %v, want %v (diff %.2f)", check.IsBalanced, tt.wantBalance, check.Difference)
			}
			wantDiff := tt.assets - (tt.liabilities + tt.equity)
			if math.Abs(check.Difference-wantDiff) > 1e-9 {
				t.Errorf("Difference = %v, want %v", check.Difference, wantDiff)
			}
		})
	}
}

func TestCheckCashFlowEquation(t *testing.T) {
	check := CheckCashFlowEquation(500000, -200000, -100000, 200000, 1.00)
	if !check.IsBalanced {
		t.Errorf("200k net change should tie out: %+v", check)
	}

	check = CheckCashFlowEquation(500000, -200000, -100000, 350000, 1.00)
	if check.IsBalanced {
		t.Error("150k gap should not tie out")
	}
}

func TestCalculateChange(t *testing.T) {
	if got := CalculateChange(1100000, 1000000); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("10%% growth, got %v", got)
	}
	if got := CalculateChange(0, 0); got != 0 {
		t.Errorf("zero over zero should be 0, got %v", got)
	}
	if got := CalculateChange(500, 0); !math.IsInf(got, 1) {
		t.Errorf("growth from zero should be +Inf, got %v", got)
	}
}

func TestCheckForOutlierZeroDrop(t *testing.T) {
	check := CheckForOutlier("TOTAL_REVENUE", 0, 2400000, 300)
	if !check.IsOutlier {
		t.Fatal("revenue dropping to zero should be flagged")
	}
	if check.Reason != "Value dropped to zero (likely extraction error)" {
		t.Errorf("unexpected reason: %q", check.Reason)
	}
}

func TestCheckForOutlierThreshold(t *testing.T) {
	if check := CheckForOutlier("TOTAL_ASSETS", 1200000, 1000000, 300); check.IsOutlier {
		t.Errorf("20%% growth should pass a 300%% threshold: %+v", check)
	}
	if check := CheckForOutlier("TOTAL_ASSETS", 5000000, 1000000, 300); !check.IsOutlier {
		t.Error("400 percent growth should trip a 300 percent threshold")
	}
}

func TestCheckModel(t *testing.T) {
	end2023 := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	end2024 := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	m := &models.FinancialModel{
		DealID: "D-77",
		Periods: []*models.FinancialPeriod{
			{
				DealID:     "D-77",
				PeriodEnd:  end2023,
				PeriodType: models.PeriodTypeFiscalYearEnd,
				Income:     map[string]float64{"TOTAL_REVENUE": 2400000, "NET_INCOME": 300000},
				Balance:    map[string]float64{"TOTAL_ASSETS": 1800000, "CASH_AND_EQUIVALENTS": 250000},
				CashFlow:   map[string]float64{},
			},
			{
				DealID:     "D-77",
				PeriodEnd:  end2024,
				PeriodType: models.PeriodTypeFiscalYearEnd,
				Income:     map[string]float64{"TOTAL_REVENUE": 0, "NET_INCOME": 320000},
				Balance:    map[string]float64{"TOTAL_ASSETS": 1900000, "CASH_AND_EQUIVALENTS": 400000},
				CashFlow: map[string]float64{
					"NET_CASH_OPERATING": 500000,
					"NET_CASH_INVESTING": -200000,
					"NET_CASH_FINANCING": -100000,
				},
			},
		},
	}

	issues := CheckModel(m, 300)

	var sawZeroDrop, sawCashTie bool
	for _, issue := range issues {
		t.Logf("issue: %s %s: %s", issue.PeriodEnd, issue.Item, issue.Message)
		if issue.Item == "TOTAL_REVENUE" {
			sawZeroDrop = true
		}
		if issue.Item == "CASH_FLOW_TIE" {
			sawCashTie = true
		}
	}
	if !sawZeroDrop {
		t.Error("revenue zero-drop not reported")
	}
	// Cash moved 150k but the statement sums to 200k.
	if !sawCashTie {
		t.Error("cash flow tie-out miss not reported")
	}
}
