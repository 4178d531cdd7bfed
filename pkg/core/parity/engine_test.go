package parity

import (
	"strings"
	"testing"
	"time"

	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/models"
)

func TestCompareIdenticalSidesPass(t *testing.T) {
	values := map[string]float64{
		"TOTAL_REVENUE": 2400000,
		"EBITDA":        450000,
		"NET_INCOME":    185000,
		"TOTAL_ASSETS":  4250000,
	}
	left := sideWith("legacy", date(2023, 12, 31), values)
	right := sideWith("model", date(2023, 12, 31), values)

	report := NewEngine().Compare("deal-9", left, right)

	if report.Verdict != VerdictPass {
		t.Errorf("identical sides should pass, got %s", report.Verdict)
	}
	if !report.Pass {
		t.Error("gate should pass on identical sides")
	}
	if report.Summary.MaterialDiffs != 0 {
		t.Errorf("expected no material diffs, got %d", report.Summary.MaterialDiffs)
	}
	if report.Summary.CellsCompared != 4 {
		t.Errorf("expected 4 compared cells, got %d", report.Summary.CellsCompared)
	}
}

func TestCompareDollarToleranceAtScale(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 1000000})

	right := sideWith("model", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 1000001.00})
	report := NewEngine().Compare("deal-9", left, right)
	if report.Summary.MaterialDiffs != 0 {
		t.Errorf("a one dollar delta on a million is noise, got %d material diffs", report.Summary.MaterialDiffs)
	}
	if report.Verdict != VerdictPass {
		t.Errorf("expected PASS, got %s", report.Verdict)
	}

	right = sideWith("model", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 1000001.01})
	report = NewEngine().Compare("deal-9", left, right)
	if report.Summary.MaterialDiffs != 1 {
		t.Errorf("a cent past a dollar is material, got %d material diffs", report.Summary.MaterialDiffs)
	}
	if report.Verdict != VerdictWarn {
		t.Errorf("expected WARN, got %s", report.Verdict)
	}
}

func TestCompareNonHeadlineWarnStillPassesGate(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE":      2400000,
		"COST_OF_GOODS_SOLD": 960000,
	})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE":      2400000,
		"COST_OF_GOODS_SOLD": 960500,
	})

	report := NewEngine().Compare("deal-9", left, right)

	if report.Verdict != VerdictWarn {
		t.Fatalf("expected WARN, got %s", report.Verdict)
	}
	if report.Summary.Warnings != 1 {
		t.Errorf("expected one warn-level diff, got %d", report.Summary.Warnings)
	}
	if !report.Pass {
		t.Error("a warn on a non-headline key should still pass the gate")
	}
}

func TestCompareHeadlineBreachFailsGate(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{"EBITDA": 450000})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{"EBITDA": 450500})

	report := NewEngine().Compare("deal-9", left, right)

	if report.Verdict != VerdictWarn {
		t.Fatalf("expected WARN, got %s", report.Verdict)
	}
	if report.Pass {
		t.Error("a material diff on a headline key must fail the gate")
	}
}

func TestCompareBlockVerdict(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2400000})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2450000})

	report := NewEngine().Compare("deal-9", left, right)

	if report.Verdict != VerdictBlock {
		t.Fatalf("a 50k revenue gap should block, got %s", report.Verdict)
	}
	if report.Pass {
		t.Error("blocked runs never pass")
	}
	if report.Summary.Blocks != 1 {
		t.Errorf("expected 1 block-level diff, got %d", report.Summary.Blocks)
	}
}

func TestCompareMissingPeriodIsError(t *testing.T) {
	values := map[string]float64{"TOTAL_REVENUE": 2400000}
	left := Side{Name: "legacy", Periods: []SidePeriod{
		period(date(2022, 12, 31), values),
		period(date(2023, 12, 31), values),
	}}
	right := Side{Name: "model", Periods: []SidePeriod{
		period(date(2023, 12, 31), values),
	}}

	report := NewEngine().Compare("deal-9", left, right)

	if !reportHasFlag(report, FlagMissingPeriod) {
		t.Fatalf("dropped legacy period must flag, got %+v", report.Flags)
	}
	if report.Summary.ErrorFlags != 1 {
		t.Errorf("missing period is error severity, got %d error flags", report.Summary.ErrorFlags)
	}
	if report.Verdict == VerdictPass || report.Pass {
		t.Errorf("a run that lost a period cannot pass: verdict=%s pass=%v", report.Verdict, report.Pass)
	}
	if report.Summary.PeriodsCompared != 1 {
		t.Errorf("only the shared period should be compared, got %d", report.Summary.PeriodsCompared)
	}
}

func TestCompareExtraPeriodIsWarning(t *testing.T) {
	values := map[string]float64{"TOTAL_REVENUE": 2400000}
	left := Side{Name: "legacy", Periods: []SidePeriod{
		period(date(2023, 12, 31), values),
	}}
	right := Side{Name: "model", Periods: []SidePeriod{
		period(date(2023, 12, 31), values),
		period(date(2024, 6, 30), values),
	}}

	report := NewEngine().Compare("deal-9", left, right)

	if !reportHasFlag(report, FlagExtraPeriod) {
		t.Fatalf("extra model period must flag, got %+v", report.Flags)
	}
	if report.Summary.WarningFlags != 1 {
		t.Errorf("extra period is warning severity, got %d warning flags", report.Summary.WarningFlags)
	}
	// The model finding a period legacy missed is progress, not regression.
	if report.Verdict != VerdictPass || !report.Pass {
		t.Errorf("extra period alone should not fail: verdict=%s pass=%v", report.Verdict, report.Pass)
	}
}

func TestCompareScalingMistakeBlocksWithFlag(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2571})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2571777})

	report := NewEngine().Compare("deal-9", left, right)

	if !reportHasFlag(report, FlagScalingError) {
		t.Fatalf("thousands-vs-units gap must flag, got %+v", report.Flags)
	}
	if report.Verdict != VerdictBlock {
		t.Errorf("expected BLOCK, got %s", report.Verdict)
	}

	// Same magnitudes, one dollar apart: no flag, no material diff.
	left = sideWith("legacy", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2571777})
	right = sideWith("model", date(2023, 12, 31), map[string]float64{"TOTAL_REVENUE": 2571778})
	report = NewEngine().Compare("deal-9", left, right)
	if reportHasFlag(report, FlagScalingError) {
		t.Errorf("adjacent values are not a scaling mistake: %+v", report.Flags)
	}
	if report.Verdict != VerdictPass {
		t.Errorf("expected PASS, got %s", report.Verdict)
	}
}

func TestCompareSignFlip(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{"NET_INCOME": 185000})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{"NET_INCOME": -185000})

	report := NewEngine().Compare("deal-9", left, right)

	if !reportHasFlag(report, FlagSignFlip) {
		t.Fatalf("opposite signs must flag, got %+v", report.Flags)
	}
	if report.Pass {
		t.Error("sign flips are error class and must fail the gate")
	}
}

func TestCompareOneSidedValueBecomesNote(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE": 2400000,
		"TOTAL_DEBT":    900000,
	})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE": 2400000,
	})

	report := NewEngine().Compare("deal-9", left, right)

	if report.Summary.CellsCompared != 1 {
		t.Errorf("only two-sided cells are compared, got %d", report.Summary.CellsCompared)
	}
	found := false
	for _, n := range report.Notes {
		if strings.Contains(n, "TOTAL_DEBT") && strings.Contains(n, "legacy") {
			found = true
		}
	}
	if !found {
		t.Errorf("one-sided TOTAL_DEBT should surface as a note, got %v", report.Notes)
	}
	if report.Verdict != VerdictPass {
		t.Errorf("one-sided values alone should not fail, got %s", report.Verdict)
	}
}

func TestFromModelStatementValuesWinOverMetrics(t *testing.T) {
	model := &models.FinancialModel{
		DealID: "deal-9",
		Periods: []*models.FinancialPeriod{{
			DealID:     "deal-9",
			PeriodEnd:  date(2023, 12, 31),
			PeriodType: models.PeriodTypeFiscalYearEnd,
			Income: map[string]float64{
				"TOTAL_REVENUE": 2400000,
				"EBITDA":        450000,
			},
			Balance: map[string]float64{"TOTAL_ASSETS": 4250000},
		}},
	}
	metrics := map[string]map[string]*float64{
		"2023-12-31": {
			"EBITDA":         fp(460000),
			"DEBT_TO_EBITDA": fp(2.0),
			"CURRENT_RATIO":  fp(1.4),
		},
	}

	side := FromModel(model, metrics)

	if len(side.Periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(side.Periods))
	}
	vals := side.Periods[0].Values
	if v := vals["EBITDA"]; v == nil || *v != 450000 {
		t.Errorf("statement EBITDA should win over the evaluated one, got %v", v)
	}
	if v := vals["DEBT_TO_EBITDA"]; v == nil || *v != 2.0 {
		t.Errorf("evaluated ratio should fill the gap, got %v", v)
	}
	if _, ok := vals["CURRENT_RATIO"]; ok {
		t.Error("non-canonical metrics should not leak into the side")
	}
	if v := vals["TOTAL_ASSETS"]; v == nil || *v != 4250000 {
		t.Errorf("balance sheet value missing, got %v", v)
	}
}

func TestFromLegacyMergesStatementsAndSkipsAggregates(t *testing.T) {
	stmts := []legacy.Statement{
		{
			DealID: "deal-9",
			Type:   "BALANCE_SHEET",
			Columns: []legacy.Column{
				{Key: "2022-12-31", Label: "FY 2022"},
				{Key: "2023-12-31", Label: "FY 2023"},
				{Key: "ttm", Label: "TTM Dec-23", Aggregate: true},
			},
			Rows: []legacy.Row{
				{Label: "Assets", Header: true},
				{Label: "Total Assets", Values: map[string]*float64{
					"2022-12-31": fp(4000000),
					"2023-12-31": fp(4250000),
					"ttm":        fp(4250000),
				}},
				{Label: "Members' Equity", Values: map[string]*float64{
					"2023-12-31": fp(1900000),
				}},
			},
		},
		{
			DealID: "deal-9",
			Type:   "INCOME_STATEMENT",
			Columns: []legacy.Column{
				{Key: "2023-12-31", Label: "FY 2023"},
			},
			Rows: []legacy.Row{
				{Label: "Revenue", Values: map[string]*float64{"2023-12-31": fp(2400000)}},
				{Label: "Branch Count", Values: map[string]*float64{"2023-12-31": fp(14)}},
			},
		},
	}

	side := FromLegacy(stmts)

	if len(side.Periods) != 2 {
		t.Fatalf("expected 2 dated periods (aggregate column dropped), got %d", len(side.Periods))
	}
	if !side.Periods[0].End.Before(side.Periods[1].End) {
		t.Error("periods should sort ascending")
	}

	fy23 := side.Periods[1].Values
	if v := fy23["TOTAL_ASSETS"]; v == nil || *v != 4250000 {
		t.Errorf("TOTAL_ASSETS not mapped, got %v", v)
	}
	if v := fy23["TOTAL_EQUITY"]; v == nil || *v != 1900000 {
		t.Errorf("Members' Equity should map to TOTAL_EQUITY, got %v", v)
	}
	if v := fy23["TOTAL_REVENUE"]; v == nil || *v != 2400000 {
		t.Errorf("income statement should merge into the same period, got %v", v)
	}
	if _, ok := fy23["BRANCH_COUNT"]; ok {
		t.Error("unmapped rows should not leak into the side")
	}

	fy22 := side.Periods[0].Values
	if _, ok := fy22["TOTAL_EQUITY"]; ok {
		t.Error("FY22 never reported equity and must not inherit it")
	}
}

func TestReportMarkdownAndHTML(t *testing.T) {
	left := sideWith("legacy", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE": 2400000,
		"NET_INCOME":    185000,
	})
	right := sideWith("model", date(2023, 12, 31), map[string]float64{
		"TOTAL_REVENUE": 2450000,
		"NET_INCOME":    -185000,
	})

	report := NewEngine().Compare("deal-9", left, right)
	md := report.BuildMarkdown()

	for _, want := range []string{
		"# Parity Report: deal-9",
		"Verdict: `BLOCK`",
		"SIGN_FLIP",
		"| TOTAL_REVENUE |",
		"Period 2023-12-31",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	html, err := report.RenderHTML()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, "<table>") {
		t.Errorf("diff grid should render as an html table")
	}
	if !strings.Contains(html, "<h1>") {
		t.Errorf("title should render as a heading")
	}
	t.Logf("rendered %d bytes of markdown, %d of html", len(md), len(html))
}

func sideWith(name string, end time.Time, values map[string]float64) Side {
	return Side{Name: name, Periods: []SidePeriod{period(end, values)}}
}

func period(end time.Time, values map[string]float64) SidePeriod {
	sp := SidePeriod{End: end, Label: "FYE " + end.Format("2006-01-02"), Values: make(map[string]*float64)}
	for k, v := range values {
		vv := v
		sp.Values[k] = &vv
	}
	return sp
}

func fp(v float64) *float64 { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
