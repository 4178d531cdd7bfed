package spread

import (
	"fmt"
	"time"

	"loan_spreading/pkg/core/validate"
	"loan_spreading/pkg/models"
)

// BalanceTolerance is the rounding slack allowed on the balance sheet
// equation before the imbalance flag is raised.
const BalanceTolerance = 1.00

type BuilderConfig struct {
	// YearCutoff rejects period dates before this year as extraction noise.
	YearCutoff int
	// Production tolerates duplicate period ids instead of failing the build.
	Production bool
}

func DefaultConfig() BuilderConfig {
	return BuilderConfig{YearCutoff: 1980}
}

// Builder folds extracted facts into a FinancialModel. Every build starts
// from the full fact set; periods are never patched in place.
type Builder struct {
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.YearCutoff == 0 {
		cfg.YearCutoff = DefaultConfig().YearCutoff
	}
	return &Builder{cfg: cfg}
}

// workingPeriod carries per-field confidence alongside the period while the
// fold runs, so a higher-confidence dated fact is not clobbered by a lower
// one arriving later.
type workingPeriod struct {
	period *models.FinancialPeriod
	conf   map[string]float64
}

// Build turns a deal's facts into its financial model.
//
// Facts with no numeric value, an unusable date (outside the undated pass),
// an irrelevant type, or an unmapped key are filtered silently: they are
// input defects, not errors. Undated current-pass facts are applied onto the
// most recent real period after all dated facts, so the wide "current"
// extraction overwrites narrower values on key collisions.
func (b *Builder) Build(dealID string, facts []models.Fact) (*models.FinancialModel, error) {
	dated, undated := b.partition(facts)

	periods := make(map[string]*workingPeriod)
	for _, df := range dated {
		key := df.end.Format("2006-01-02")
		wp, ok := periods[key]
		if !ok {
			wp = &workingPeriod{
				period: &models.FinancialPeriod{
					DealID:     dealID,
					PeriodEnd:  df.end,
					PeriodType: classifyPeriod(df.end),
					Income:     make(map[string]float64),
					Balance:    make(map[string]float64),
					CashFlow:   make(map[string]float64),
				},
				conf: make(map[string]float64),
			}
			periods[key] = wp
		}
		applyDated(wp, df.fact)
	}

	model := &models.FinancialModel{DealID: dealID}
	for _, wp := range periods {
		model.Periods = append(model.Periods, wp.period)
	}
	model.SortPeriods()

	// Sentinel promotion: the undated current pass rides on the latest real
	// period. With no real period there is nothing to attach to.
	if latest := model.LatestPeriod(); latest != nil {
		for _, fact := range undated {
			applyOverwrite(latest, fact)
		}
	}

	for _, p := range model.Periods {
		b.derive(p)
		p.Flags = b.qualityFlags(p)
	}

	if err := b.checkDuplicates(model); err != nil {
		return nil, err
	}
	return model, nil
}

type datedFact struct {
	fact models.Fact
	end  time.Time
}

func (b *Builder) partition(facts []models.Fact) ([]datedFact, []models.Fact) {
	var dated []datedFact
	var undated []models.Fact
	for _, f := range facts {
		if !relevantFactTypes[f.Type] || f.Value == nil {
			continue
		}
		end, ok := parsePeriodEnd(f.PeriodEnd, b.cfg.YearCutoff)
		if ok {
			dated = append(dated, datedFact{fact: f, end: end})
			continue
		}
		if undatedPassTypes[f.Type] {
			undated = append(undated, f)
		}
	}
	return dated, undated
}

// applyDated writes a dated fact into its period. On a key collision the
// higher confidence wins; equal or absent confidence means last write wins.
func applyDated(wp *workingPeriod, fact models.Fact) {
	mapping, ok := fieldDictionary[fact.Key]
	if !ok {
		return
	}
	stmt := wp.period.Statement(mapping.Statement)
	slot := mapping.Statement + "/" + mapping.Field

	incoming := 1.0
	if fact.Confidence != nil {
		incoming = *fact.Confidence
	}
	if prev, exists := wp.conf[slot]; exists && incoming < prev {
		return
	}
	stmt[mapping.Field] = *fact.Value
	wp.conf[slot] = incoming
}

// applyOverwrite writes a promoted undated fact, unconditionally replacing
// whatever the dated passes put there.
func applyOverwrite(p *models.FinancialPeriod, fact models.Fact) {
	mapping, ok := fieldDictionary[fact.Key]
	if !ok {
		return
	}
	p.Statement(mapping.Statement)[mapping.Field] = *fact.Value
}

// derive fills computed fields from values present in the same period.
// Derivation never overwrites an extracted value. Absent lines contribute
// zero inside a derivation; the guards below decide whether the derivation
// runs at all.
func (b *Builder) derive(p *models.FinancialPeriod) {
	inc, bal, cf := p.Income, p.Balance, p.CashFlow

	if rev, ok := inc["TOTAL_REVENUE"]; ok {
		if _, exists := inc["EBITDA"]; !exists {
			inc["EBITDA"] = rev - inc["COST_OF_GOODS_SOLD"] - inc["TOTAL_OPERATING_EXPENSES"] + inc["DEPRECIATION"]
		}
	}

	assets, okAssets := bal["TOTAL_ASSETS"]
	liab, okLiab := bal["TOTAL_LIABILITIES"]
	if _, okEquity := bal["TOTAL_EQUITY"]; !okEquity && okAssets && okLiab {
		bal["TOTAL_EQUITY"] = assets - liab
	}

	if ebitda, ok := inc["EBITDA"]; ok {
		if _, exists := cf["CASH_AVAILABLE_FOR_DEBT_SERVICE"]; !exists {
			cf["CASH_AVAILABLE_FOR_DEBT_SERVICE"] = ebitda - cf["CAPITAL_EXPENDITURES"]
		}
	}
}

func (b *Builder) qualityFlags(p *models.FinancialPeriod) []string {
	var flags []string

	rev, hasRev := p.Income["TOTAL_REVENUE"]
	if !hasRev {
		flags = append(flags, models.FlagMissingRevenue)
	} else if rev < 0 {
		flags = append(flags, models.FlagNegativeRevenue)
	}

	assets, hasAssets := p.Balance["TOTAL_ASSETS"]
	if !hasAssets {
		flags = append(flags, models.FlagMissingTotalAssets)
	}

	liab, hasLiab := p.Balance["TOTAL_LIABILITIES"]
	equity, hasEquity := p.Balance["TOTAL_EQUITY"]
	if hasAssets && hasLiab && hasEquity {
		check := validate.CheckBalanceEquation(assets, liab, equity, BalanceTolerance)
		if !check.IsBalanced {
			flags = append(flags, models.FlagBalanceSheetImbalance)
		}
	}

	return flags
}

// checkDuplicates guards the one-period-per-end-date invariant. Grouping by
// date makes a duplicate unreachable today; if one ever appears, staging
// fails loudly and production keeps the first occurrence.
func (b *Builder) checkDuplicates(model *models.FinancialModel) error {
	seen := make(map[string]bool, len(model.Periods))
	kept := model.Periods[:0]
	for _, p := range model.Periods {
		id := p.PeriodID()
		if !seen[id] {
			seen[id] = true
			kept = append(kept, p)
			continue
		}
		if !b.cfg.Production {
			return fmt.Errorf("duplicate period id %s in deal %s", id, model.DealID)
		}
	}
	model.Periods = kept
	return nil
}
