// Package pipeline orchestrates one authoritative spreading run: load facts,
// build the model, evaluate the metric graph, screen risk, hash, compare
// against the legacy rendering when the mode calls for it, and persist the
// audit trail. Audit and shadow steps are best-effort; the computed result
// always comes back to the caller.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loan_spreading/pkg/core/canon"
	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/core/metrics"
	"loan_spreading/pkg/core/modes"
	"loan_spreading/pkg/core/parity"
	"loan_spreading/pkg/core/risk"
	"loan_spreading/pkg/core/spread"
	"loan_spreading/pkg/core/validate"
	"loan_spreading/pkg/core/viewmodel"
	"loan_spreading/pkg/models"
)

// EngineVersion is stamped onto snapshots and rendering records so replays
// can tell which engine produced a result. Bump on any change that can move
// a computed number.
const EngineVersion = "spread-engine/2.1.0"

// FactLoader retrieves the extraction snapshot for a deal. Implementations
// load from the extraction store, a file drop, or a test fixture.
type FactLoader interface {
	LoadFacts(ctx context.Context, dealID string) (*ingest.FactFile, error)
}

// LegacyLoader retrieves the legacy renderer's statement export for a deal.
type LegacyLoader interface {
	LoadStatements(ctx context.Context, dealID string) ([]legacy.Statement, error)
}

// SnapshotStore is the audit sink. Both store.SnapshotRepo (Postgres) and
// store.Vault (embedded) satisfy it.
type SnapshotStore interface {
	Persist(ctx context.Context, snap *models.ModelSnapshot) (string, bool, error)
}

// RenderingStore keeps the current-rendering rows the authoritative path
// overwrites. store.RenderingRepo and store.Vault both satisfy it.
type RenderingStore interface {
	SaveCurrent(ctx context.Context, rec *models.RenderingRecord) error
}

// QCConfig controls the post-build quality sweep.
type QCConfig struct {
	// Strict escalates QC findings from warnings to critical log lines.
	// Findings never fail the run either way.
	Strict bool
	// OutlierThresholdPct is the period-over-period movement beyond which a
	// tracked line is reported. Zero means the default.
	OutlierThresholdPct float64
}

// Orchestrator manages the end-to-end spreading flow:
// facts -> build -> evaluate -> risk -> hash -> (parity) -> persist.
type Orchestrator struct {
	facts       FactLoader
	legacyData  LegacyLoader
	builder     *spread.Builder
	registry    *metrics.Registry
	comparator  *parity.Engine
	riskEngine  *risk.Engine
	modeConfig  modes.Config
	snapshots   SnapshotStore
	renderings  RenderingStore
	qc          QCConfig
	loadTimeout time.Duration
}

// New creates an orchestrator with built-in defaults: default builder and
// registry, default parity thresholds, empty mode config (everything
// primary), no stores. Callers inject what their environment provides.
func New(facts FactLoader) *Orchestrator {
	return &Orchestrator{
		facts:       facts,
		builder:     spread.NewBuilder(spread.DefaultConfig()),
		registry:    metrics.DefaultRegistry(),
		comparator:  parity.NewEngine(),
		riskEngine:  risk.NewEngine(),
		qc:          QCConfig{OutlierThresholdPct: 200},
		loadTimeout: 30 * time.Second,
	}
}

// SetLegacyLoader enables parity comparison in legacy and shadow modes.
func (o *Orchestrator) SetLegacyLoader(l LegacyLoader) { o.legacyData = l }

// SetSnapshotStore enables the append-only snapshot audit trail.
func (o *Orchestrator) SetSnapshotStore(s SnapshotStore) { o.snapshots = s }

// SetRenderingStore enables current-rendering writes on the primary path.
func (o *Orchestrator) SetRenderingStore(r RenderingStore) { o.renderings = r }

// SetBuilder replaces the model builder (e.g. a different year cutoff).
func (o *Orchestrator) SetBuilder(b *spread.Builder) { o.builder = b }

// SetRegistry replaces the metric registry.
func (o *Orchestrator) SetRegistry(reg *metrics.Registry) { o.registry = reg }

// SetParityEngine replaces the comparison thresholds and headline keys.
func (o *Orchestrator) SetParityEngine(e *parity.Engine) { o.comparator = e }

// SetRiskEngine replaces the risk screen.
func (o *Orchestrator) SetRiskEngine(e *risk.Engine) { o.riskEngine = e }

// SetModes installs the staged-rollout configuration.
func (o *Orchestrator) SetModes(cfg modes.Config) { o.modeConfig = cfg }

// SetQC updates the quality-sweep configuration.
func (o *Orchestrator) SetQC(qc QCConfig) { o.qc = qc }

// SetLoadTimeout bounds the fact and legacy loads.
func (o *Orchestrator) SetLoadTimeout(d time.Duration) { o.loadTimeout = d }

// Result is everything one run produced. Fields the mode or configuration
// skipped are zero-valued, never partially filled.
type Result struct {
	DealID       string                          `json:"deal_id"`
	BankID       string                          `json:"bank_id,omitempty"`
	Mode         modes.Decision                  `json:"mode"`
	Model        *models.FinancialModel          `json:"model"`
	Metrics      map[string]map[string]*float64  `json:"metrics"`
	Diagnostics  map[string][]metrics.Diagnostic `json:"diagnostics,omitempty"`
	MetricTrace  map[string][]string             `json:"metric_trace,omitempty"`
	RiskFlags    []string                        `json:"risk_flags"`
	QCIssues     []validate.ModelIssue           `json:"qc_issues,omitempty"`
	ViewModel    *viewmodel.ViewModel            `json:"view_model"`
	InputDigest  string                          `json:"input_digest"`
	OutputDigest string                          `json:"output_digest"`
	SnapshotID   string                          `json:"snapshot_id,omitempty"`
	Parity       *parity.Report                  `json:"parity,omitempty"`
}

// Run executes the full pipeline for one deal. Only a fact-load failure or
// a defective metric graph fails the run; every persistence and comparison
// problem is logged and carried as a degraded result.
func (o *Orchestrator) Run(ctx context.Context, dealID, bankID string) (*Result, error) {
	loadCtx, cancel := context.WithTimeout(ctx, o.loadTimeout)
	defer cancel()

	ff, err := o.facts.LoadFacts(loadCtx, dealID)
	if err != nil {
		return nil, fmt.Errorf("fact load failed for deal %s: %w", dealID, err)
	}
	if bankID == "" {
		bankID = ff.BankID
	}
	return o.RunWithFacts(ctx, dealID, bankID, ff.Facts)
}

// RunWithFacts is Run with the facts already in hand, for callers that
// receive them inline (the build endpoint, tests).
func (o *Orchestrator) RunWithFacts(ctx context.Context, dealID, bankID string, facts []models.Fact) (*Result, error) {
	start := time.Now()
	fmt.Printf("[SPREAD] Starting run for deal %s (%d facts)\n", dealID, len(facts))

	decision := modes.Select(o.modeConfig, modes.Context{DealID: dealID, BankID: bankID, Privileged: true})
	fmt.Printf("[MODES] %s: %s\n", decision.Mode, decision.Reason)

	// 1. Build the model.
	model, err := o.builder.Build(dealID, facts)
	if err != nil {
		return nil, fmt.Errorf("model build failed for deal %s: %w", dealID, err)
	}
	fmt.Printf("[SPREAD] Built %d periods\n", len(model.Periods))

	// 2. Evaluate the metric graph per period. A cycle is fatal; everything
	// else degrades to nulls with diagnostics.
	result := &Result{
		DealID:  dealID,
		BankID:  bankID,
		Mode:    decision,
		Model:   model,
		Metrics: make(map[string]map[string]*float64, len(model.Periods)),
	}
	for _, p := range model.Periods {
		base := metrics.BaseValues(p.Income, p.Balance, p.CashFlow)
		values, diags, trace, err := metrics.EvaluateFull(o.registry.Metrics, base)
		if err != nil {
			return nil, fmt.Errorf("metric evaluation failed for deal %s: %w", dealID, err)
		}
		endKey := p.PeriodEnd.Format("2006-01-02")
		result.Metrics[endKey] = values
		if len(diags) > 0 {
			if result.Diagnostics == nil {
				result.Diagnostics = make(map[string][]metrics.Diagnostic)
			}
			result.Diagnostics[endKey] = diags
		}
		// The realized dependency list is a property of the formulas, not of
		// the period's values, so the last period's trace stands for all.
		result.MetricTrace = trace
	}

	// 3. Risk screen and quality sweep.
	result.RiskFlags = o.riskEngine.Assess(model, result.Metrics)
	result.QCIssues = o.runQC(model)

	// 4. Digests. Outputs alone drive snapshot dedup; inputs tie the audit
	// record back to exactly what was computed from.
	if err := o.digest(result, facts); err != nil {
		return nil, err
	}

	// 5. Parity against the legacy rendering while it is still authoritative
	// or shadowed. Failure to load or compare degrades, never aborts.
	if decision.Mode != modes.ModePrimary && o.legacyData != nil {
		result.Parity = o.runParity(ctx, dealID, model, result.Metrics)
	}

	// 6. Persist the audit trail: snapshot always, current renderings only
	// when the new path is authoritative.
	o.persist(ctx, result)

	// 7. View model for the presentation layer.
	result.ViewModel = viewmodel.FromModel(model, result.Metrics)

	fmt.Printf("[SPREAD] Run for deal %s completed in %v\n", dealID, time.Since(start))
	return result, nil
}

// runQC sweeps the built model and logs findings. Strict mode escalates the
// log level; findings are advisory either way.
func (o *Orchestrator) runQC(model *models.FinancialModel) []validate.ModelIssue {
	threshold := o.qc.OutlierThresholdPct
	if threshold <= 0 {
		threshold = 200
	}
	issues := validate.CheckModel(model, threshold)
	for _, issue := range issues {
		if o.qc.Strict {
			fmt.Printf("[SPREAD] ❌ QC %s %s: %s\n", issue.PeriodEnd, issue.Item, issue.Message)
		} else {
			fmt.Printf("[SPREAD] ⚠️ QC %s %s: %s\n", issue.PeriodEnd, issue.Item, issue.Message)
		}
	}
	return issues
}

func (o *Orchestrator) digest(result *Result, facts []models.Fact) error {
	outputDigest, err := canon.Hash(struct {
		Model   *models.FinancialModel         `json:"model"`
		Metrics map[string]map[string]*float64 `json:"metrics"`
	}{result.Model, result.Metrics})
	if err != nil {
		return fmt.Errorf("output digest failed: %w", err)
	}
	result.OutputDigest = outputDigest

	inputDigest, err := canon.Hash(struct {
		Facts           []models.Fact                  `json:"facts"`
		Model           *models.FinancialModel         `json:"model"`
		Metrics         map[string]map[string]*float64 `json:"metrics"`
		RegistryVersion string                         `json:"registry_version"`
		EngineVersion   string                         `json:"engine_version"`
	}{facts, result.Model, result.Metrics, o.registry.Version, EngineVersion})
	if err != nil {
		return fmt.Errorf("input digest failed: %w", err)
	}
	result.InputDigest = inputDigest
	return nil
}

// runParity loads the legacy export and compares it (left, the reference)
// against this run's model (right). Any failure returns nil with a warning.
func (o *Orchestrator) runParity(ctx context.Context, dealID string, model *models.FinancialModel, metricsByPeriod map[string]map[string]*float64) *parity.Report {
	loadCtx, cancel := context.WithTimeout(ctx, o.loadTimeout)
	defer cancel()

	stmts, err := o.legacyData.LoadStatements(loadCtx, dealID)
	if err != nil {
		fmt.Printf("[WARNING] Legacy load failed for deal %s, skipping parity: %v\n", dealID, err)
		return nil
	}

	report := o.comparator.Compare(dealID, parity.FromLegacy(stmts), parity.FromModel(model, metricsByPeriodCopy(metricsByPeriod)))
	fmt.Printf("[PARITY] Deal %s: verdict %s (pass=%v), %d material diffs, %d flags\n",
		dealID, report.Verdict, report.Pass, report.Summary.MaterialDiffs, len(report.Flags))
	return report
}

// persist writes the snapshot and, on the primary path, the current
// renderings. Failures are logged and swallowed: a broken audit trail must
// never cost the caller its computed result.
func (o *Orchestrator) persist(ctx context.Context, result *Result) {
	if o.snapshots != nil {
		snap := &models.ModelSnapshot{
			DealID:          result.DealID,
			BankID:          result.BankID,
			InputDigest:     result.InputDigest,
			OutputDigest:    result.OutputDigest,
			RegistryVersion: o.registry.Version,
			EngineVersion:   EngineVersion,
			Model:           result.Model,
			Metrics:         result.Metrics,
			MetricTrace:     result.MetricTrace,
			RiskFlags:       result.RiskFlags,
		}
		id, created, err := o.snapshots.Persist(ctx, snap)
		if err != nil {
			fmt.Printf("[WARNING] Snapshot persist failed for deal %s: %v\n", result.DealID, err)
		} else {
			result.SnapshotID = id
			if created {
				fmt.Printf("[SNAPSHOT] Wrote snapshot %s for deal %s\n", id, result.DealID)
			} else {
				fmt.Printf("[SNAPSHOT] Outputs unchanged for deal %s, reusing snapshot %s\n", result.DealID, id)
			}
		}
	}

	if o.renderings != nil && result.Mode.Mode == modes.ModePrimary {
		o.saveRenderings(ctx, result)
	}
}

// saveRenderings overwrites the per-statement current-rendering rows.
func (o *Orchestrator) saveRenderings(ctx context.Context, result *Result) {
	type renderedPeriod struct {
		End    string             `json:"end"`
		Values map[string]float64 `json:"values"`
	}

	statements := []struct {
		name   string
		lookup func(p *models.FinancialPeriod) map[string]float64
	}{
		{models.FactTypeIncomeStatement, func(p *models.FinancialPeriod) map[string]float64 { return p.Income }},
		{models.FactTypeBalanceSheet, func(p *models.FinancialPeriod) map[string]float64 { return p.Balance }},
		{models.FactTypeCashFlow, func(p *models.FinancialPeriod) map[string]float64 { return p.CashFlow }},
	}

	for _, stmt := range statements {
		var periods []renderedPeriod
		for _, p := range result.Model.Periods {
			values := stmt.lookup(p)
			if len(values) == 0 {
				continue
			}
			periods = append(periods, renderedPeriod{
				End:    p.PeriodEnd.Format("2006-01-02"),
				Values: values,
			})
		}
		if len(periods) == 0 {
			continue
		}

		payload, err := json.Marshal(periods)
		if err != nil {
			fmt.Printf("[WARNING] Rendering marshal failed for deal %s %s: %v\n", result.DealID, stmt.name, err)
			continue
		}
		digest, err := canon.Hash(periods)
		if err != nil {
			fmt.Printf("[WARNING] Rendering digest failed for deal %s %s: %v\n", result.DealID, stmt.name, err)
			continue
		}

		rec := &models.RenderingRecord{
			DealID:          result.DealID,
			BankID:          result.BankID,
			StatementType:   stmt.name,
			Digest:          digest,
			RegistryVersion: o.registry.Version,
			EngineVersion:   EngineVersion,
			Payload:         payload,
		}
		if err := o.renderings.SaveCurrent(ctx, rec); err != nil {
			fmt.Printf("[WARNING] Rendering save failed for deal %s %s: %v\n", result.DealID, stmt.name, err)
		}
	}
}

// metricsByPeriodCopy shields the comparison from later mutation of the
// result's metric maps.
func metricsByPeriodCopy(src map[string]map[string]*float64) map[string]map[string]*float64 {
	out := make(map[string]map[string]*float64, len(src))
	for period, values := range src {
		inner := make(map[string]*float64, len(values))
		for k, v := range values {
			inner[k] = v
		}
		out[period] = inner
	}
	return out
}
