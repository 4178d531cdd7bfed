package e2e_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/modes"
	"loan_spreading/pkg/core/parity"
	"loan_spreading/pkg/core/pipeline"
	"loan_spreading/pkg/core/store"
	"loan_spreading/pkg/models"
)

// fixtureLoader serves the in-memory sample deal to the orchestrator.
type fixtureLoader struct{}

func (l *fixtureLoader) LoadFacts(ctx context.Context, dealID string) (*ingest.FactFile, error) {
	if dealID != SampleDealID {
		return nil, fmt.Errorf("no fact file for deal %s", dealID)
	}
	return SampleFacts(), nil
}

func metricAt(t *testing.T, result *pipeline.Result, end, key string) float64 {
	t.Helper()
	values, ok := result.Metrics[end]
	if !ok {
		t.Fatalf("No metrics evaluated for period %s", end)
	}
	v, ok := values[key]
	if !ok || v == nil {
		t.Fatalf("Metric %s did not resolve for period %s", key, end)
	}
	return *v
}

// TestE2E_PrimarySpread walks the full primary-mode path: fact file in,
// built model, evaluated metrics, persisted snapshot, current renderings
// out, and a byte-identical rerun.
func TestE2E_PrimarySpread(t *testing.T) {
	ctx := context.Background()

	fmt.Println(">>> Step 1: Opening in-memory vault")
	vault, err := store.OpenVaultInMemory()
	if err != nil {
		t.Fatalf("Failed to open vault: %v", err)
	}
	defer vault.Close()

	fmt.Println(">>> Step 2: Running the spreading pipeline")
	orch := pipeline.New(&fixtureLoader{})
	orch.SetSnapshotStore(vault)
	orch.SetRenderingStore(vault)

	result, err := orch.Run(ctx, SampleDealID, "")
	if err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}
	if result.Mode.Mode != modes.ModePrimary {
		t.Fatalf("Default rollout should select primary, got %s", result.Mode.Mode)
	}

	fmt.Println(">>> Step 3: Verifying the built model")
	if result.BankID != SampleBankID {
		t.Errorf("Bank id should come from the fact file: got %q, want %q", result.BankID, SampleBankID)
	}
	if len(result.Model.Periods) != 3 {
		t.Fatalf("Expected 3 fiscal years, got %d periods", len(result.Model.Periods))
	}
	for i := 1; i < len(result.Model.Periods); i++ {
		prev, cur := result.Model.Periods[i-1], result.Model.Periods[i]
		if !prev.PeriodEnd.Before(cur.PeriodEnd) {
			t.Errorf("Periods out of order: %s is not before %s",
				prev.PeriodEnd.Format("2006-01-02"), cur.PeriodEnd.Format("2006-01-02"))
		}
	}
	latest := result.Model.LatestPeriod()
	if got := latest.Income["NET_INCOME"]; got != 768500 {
		t.Errorf("Undated current financials should restate the latest year: NET_INCOME = %v, want 768500", got)
	}

	fmt.Println(">>> Step 4: Verifying evaluated metrics")
	if got := metricAt(t, result, "2023-12-31", "EBITDA"); got != 1640000 {
		t.Errorf("EBITDA FY2023 = %v, want 1640000", got)
	}
	if got := metricAt(t, result, "2025-12-31", "EBITDA"); got != 2009000 {
		t.Errorf("EBITDA FY2025 = %v, want 2009000", got)
	}
	if got := metricAt(t, result, "2025-12-31", "TOTAL_DEBT"); got != 2320000 {
		t.Errorf("TOTAL_DEBT FY2025 = %v, want 2320000", got)
	}
	wantDSCR := 1359000.0 / 730000.0
	if got := metricAt(t, result, "2025-12-31", "DSCR"); math.Abs(got-wantDSCR) > 1e-9 {
		t.Errorf("DSCR FY2025 = %v, want %v", got, wantDSCR)
	}
	wantLeverage := 2320000.0 / 2009000.0
	if got := metricAt(t, result, "2025-12-31", "DEBT_TO_EBITDA"); math.Abs(got-wantLeverage) > 1e-9 {
		t.Errorf("DEBT_TO_EBITDA FY2025 = %v, want %v", got, wantLeverage)
	}

	fmt.Println(">>> Step 5: Verifying risk and quality screens stay quiet")
	if len(result.RiskFlags) != 0 {
		t.Errorf("A healthy deal should carry no risk flags, got %v", result.RiskFlags)
	}
	if len(result.QCIssues) != 0 {
		t.Errorf("Balanced statements should pass quality checks, got %+v", result.QCIssues)
	}

	fmt.Println(">>> Step 6: Verifying digests and the persisted snapshot")
	if len(result.InputDigest) != 64 {
		t.Errorf("Input digest should be a sha256 hex string, got %q", result.InputDigest)
	}
	if len(result.OutputDigest) != 64 {
		t.Errorf("Output digest should be a sha256 hex string, got %q", result.OutputDigest)
	}
	if result.InputDigest == result.OutputDigest {
		t.Error("Input and output digests should differ")
	}
	if result.SnapshotID == "" {
		t.Fatal("Primary run should persist a snapshot")
	}
	snap, err := vault.Load(ctx, result.SnapshotID)
	if err != nil {
		t.Fatalf("Failed to load persisted snapshot: %v", err)
	}
	if snap.OutputDigest != result.OutputDigest {
		t.Errorf("Snapshot digest %s does not match the run's %s", snap.OutputDigest, result.OutputDigest)
	}
	if snap.EngineVersion != pipeline.EngineVersion {
		t.Errorf("Snapshot engine version = %q, want %q", snap.EngineVersion, pipeline.EngineVersion)
	}

	fmt.Println(">>> Step 7: Rerunning and verifying determinism")
	second, err := orch.Run(ctx, SampleDealID, "")
	if err != nil {
		t.Fatalf("Second pipeline run failed: %v", err)
	}
	if second.OutputDigest != result.OutputDigest {
		t.Errorf("Rerun changed the output digest: %s vs %s", second.OutputDigest, result.OutputDigest)
	}
	if second.SnapshotID != result.SnapshotID {
		t.Errorf("Rerun should dedup to the same snapshot: %s vs %s", second.SnapshotID, result.SnapshotID)
	}
	snaps, err := vault.ListByDeal(ctx, SampleDealID, 10)
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("Two identical runs should leave one snapshot, got %d", len(snaps))
	}

	fmt.Println(">>> Step 8: Verifying current renderings")
	for _, stmtType := range []string{
		models.FactTypeIncomeStatement,
		models.FactTypeBalanceSheet,
		models.FactTypeCashFlow,
	} {
		rec, err := vault.GetCurrent(ctx, SampleDealID, SampleBankID, stmtType)
		if err != nil {
			t.Fatalf("No current rendering for %s: %v", stmtType, err)
		}
		if rec.EngineVersion != pipeline.EngineVersion {
			t.Errorf("%s rendering engine version = %q, want %q", stmtType, rec.EngineVersion, pipeline.EngineVersion)
		}
		if len(rec.Payload) == 0 {
			t.Errorf("%s rendering has an empty payload", stmtType)
		}
		if len(rec.Digest) != 64 {
			t.Errorf("%s rendering digest should be a sha256 hex string, got %q", stmtType, rec.Digest)
		}
	}

	fmt.Println(">>> Step 9: Verifying the review view model")
	if result.ViewModel == nil {
		t.Fatal("Run should produce a view model")
	}
	if result.ViewModel.Summary.PeriodCount != 3 {
		t.Errorf("View model period count = %d, want 3", result.ViewModel.Summary.PeriodCount)
	}

	fmt.Println("✅ Primary spread pipeline verified")
}

// TestE2E_ShadowParity runs the engine in shadow mode against a matching
// legacy HTML export: the comparison must pass, the snapshot must still be
// written for audit, and the legacy renderings must remain untouched.
func TestE2E_ShadowParity(t *testing.T) {
	ctx := context.Background()

	fmt.Println(">>> Step 1: Opening in-memory vault")
	vault, err := store.OpenVaultInMemory()
	if err != nil {
		t.Fatalf("Failed to open vault: %v", err)
	}
	defer vault.Close()

	fmt.Println(">>> Step 2: Running in shadow mode against the legacy export")
	orch := pipeline.New(&fixtureLoader{})
	orch.SetSnapshotStore(vault)
	orch.SetRenderingStore(vault)
	orch.SetModes(modes.Config{Mode: modes.ModeShadow})
	orch.SetLegacyLoader(&htmlExportLoader{html: SampleLegacyHTML()})

	result, err := orch.Run(ctx, SampleDealID, "")
	if err != nil {
		t.Fatalf("Shadow run failed: %v", err)
	}
	if result.Mode.Mode != modes.ModeShadow {
		t.Fatalf("Expected shadow mode, got %s", result.Mode.Mode)
	}

	fmt.Println(">>> Step 3: Verifying the parity report")
	if result.Parity == nil {
		t.Fatal("Shadow run should produce a parity report")
	}
	report := result.Parity
	if report.Verdict != parity.VerdictPass || !report.Pass {
		t.Fatalf("Matching sides should pass: verdict=%s pass=%v flags=%+v",
			report.Verdict, report.Pass, report.Flags)
	}
	if report.Summary.PeriodsCompared != 3 {
		t.Errorf("Periods compared = %d, want 3", report.Summary.PeriodsCompared)
	}
	if report.Summary.MaterialDiffs != 0 {
		t.Errorf("Matching sides should have no material diffs, got %d", report.Summary.MaterialDiffs)
	}
	if report.Summary.ErrorFlags != 0 {
		t.Errorf("Matching sides should have no error flags, got %+v", report.Flags)
	}

	fmt.Println(">>> Step 4: Verifying report renderings")
	md := report.BuildMarkdown()
	if !strings.Contains(md, SampleDealID) || !strings.Contains(md, parity.VerdictPass) {
		t.Errorf("Markdown report is missing the deal or verdict:\n%s", md)
	}
	html, err := report.RenderHTML()
	if err != nil {
		t.Fatalf("Failed to render HTML report: %v", err)
	}
	if !strings.Contains(html, "<h1") {
		t.Errorf("HTML report looks unrendered:\n%s", html)
	}

	fmt.Println(">>> Step 5: Verifying shadow mode left the legacy surface alone")
	if result.SnapshotID == "" {
		t.Error("Shadow runs still persist snapshots for audit")
	}
	if _, err := vault.GetCurrent(ctx, SampleDealID, SampleBankID, models.FactTypeIncomeStatement); err == nil {
		t.Error("Shadow mode must not overwrite current renderings")
	}

	fmt.Println("✅ Shadow parity run verified")
}

// TestE2E_ParityBlocksDivergence feeds a legacy export whose FY2025 EBITDA
// disagrees with the model by 200k and expects the gate to hold the deal.
func TestE2E_ParityBlocksDivergence(t *testing.T) {
	ctx := context.Background()

	fmt.Println(">>> Step 1: Running in shadow mode against a divergent export")
	orch := pipeline.New(&fixtureLoader{})
	orch.SetModes(modes.Config{Mode: modes.ModeShadow})
	orch.SetLegacyLoader(&htmlExportLoader{html: DivergentLegacyHTML()})

	result, err := orch.Run(ctx, SampleDealID, "")
	if err != nil {
		t.Fatalf("Shadow run failed: %v", err)
	}
	if result.Parity == nil {
		t.Fatal("Shadow run should produce a parity report")
	}

	fmt.Println(">>> Step 2: Verifying the gate holds")
	report := result.Parity
	if report.Verdict != parity.VerdictBlock {
		t.Fatalf("A 200k EBITDA gap should block, got %s", report.Verdict)
	}
	if report.Pass {
		t.Error("A blocked comparison cannot pass")
	}
	if report.Summary.MaterialDiffs != 1 {
		t.Errorf("Expected exactly one material diff, got %d", report.Summary.MaterialDiffs)
	}
	if report.Summary.Blocks != 1 {
		t.Errorf("Expected exactly one block-level diff, got %d", report.Summary.Blocks)
	}

	fmt.Println(">>> Step 3: Verifying the diff pinpoints the divergence")
	var found bool
	for _, p := range report.Periods {
		if p.End.Format("2006-01-02") != "2025-12-31" {
			continue
		}
		for _, d := range p.Diffs {
			if d.Key != "EBITDA" || !d.Material {
				continue
			}
			found = true
			if d.Level != "block" {
				t.Errorf("EBITDA diff level = %q, want block", d.Level)
			}
			if math.Abs(d.Delta) != 200000 {
				t.Errorf("EBITDA delta = %v, want +/-200000", d.Delta)
			}
		}
	}
	if !found {
		t.Error("Report should carry a material EBITDA diff for FY2025")
	}

	fmt.Println("✅ Divergence gate verified")
}
