package parity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Verdicts for a whole comparison run.
const (
	VerdictPass  = "PASS"
	VerdictWarn  = "WARN"
	VerdictBlock = "BLOCK"
)

// Engine compares two sides under a threshold policy. Both fields are
// plain data so callers can load them from config.
type Engine struct {
	Thresholds   Thresholds
	HeadlineKeys []string
}

// NewEngine returns an engine with the default policy.
func NewEngine() *Engine {
	return &Engine{
		Thresholds:   DefaultThresholds(),
		HeadlineKeys: DefaultHeadlineKeys,
	}
}

// PeriodComparison is every diff for one aligned period.
type PeriodComparison struct {
	End   time.Time `json:"end"`
	Label string    `json:"label"`
	Diffs []Diff    `json:"diffs"`
}

// Summary is the run's roll-up counts.
type Summary struct {
	PeriodsCompared int `json:"periods_compared"`
	CellsCompared   int `json:"cells_compared"`
	MaterialDiffs   int `json:"material_diffs"`
	Warnings        int `json:"warnings"`
	Blocks          int `json:"blocks"`
	ErrorFlags      int `json:"error_flags"`
	WarningFlags    int `json:"warning_flags"`
}

// Report is the full outcome of one comparison run.
type Report struct {
	ID          string             `json:"id"`
	DealID      string             `json:"deal_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	LeftName    string             `json:"left_name"`
	RightName   string             `json:"right_name"`
	Periods     []PeriodComparison `json:"periods"`
	Flags       []Flag             `json:"flags"`
	Notes       []string           `json:"notes,omitempty"`
	Summary     Summary            `json:"summary"`
	Verdict     string             `json:"verdict"`
	Pass        bool               `json:"pass"`
}

// Compare aligns the two sides by period end date and grades every
// canonical key where both carry a value. Left is the reference side:
// a period only the left side has is an error, a period only the right
// side has is a warning, and pctDelta is always measured against left.
func (e *Engine) Compare(dealID string, left, right Side) *Report {
	report := &Report{
		ID:          uuid.New().String(),
		DealID:      dealID,
		GeneratedAt: time.Now().UTC(),
		LeftName:    left.Name,
		RightName:   right.Name,
	}

	leftByEnd := periodsByEnd(left)
	rightByEnd := periodsByEnd(right)

	for _, endKey := range unionEnds(leftByEnd, rightByEnd) {
		lp, hasLeft := leftByEnd[endKey]
		rp, hasRight := rightByEnd[endKey]

		if hasLeft && !hasRight {
			report.Flags = append(report.Flags, Flag{
				Kind: FlagMissingPeriod, Severity: SeverityError, PeriodEnd: endKey,
				Detail: fmt.Sprintf("period %s exists in %s but not in %s", endKey, left.Name, right.Name),
			})
			continue
		}
		if hasRight && !hasLeft {
			report.Flags = append(report.Flags, Flag{
				Kind: FlagExtraPeriod, Severity: SeverityWarning, PeriodEnd: endKey,
				Detail: fmt.Sprintf("period %s exists in %s but not in %s", endKey, right.Name, left.Name),
			})
			continue
		}

		pc := e.comparePeriod(endKey, lp, rp, report)
		report.Periods = append(report.Periods, pc)
		report.Summary.PeriodsCompared++
	}

	for _, f := range report.Flags {
		switch f.Severity {
		case SeverityError:
			report.Summary.ErrorFlags++
		case SeverityWarning:
			report.Summary.WarningFlags++
		}
	}

	if report.Summary.PeriodsCompared == 0 {
		report.Notes = append(report.Notes, "no overlapping periods between the two sides")
	}

	report.Verdict, report.Pass = e.grade(report)
	return report
}

func (e *Engine) comparePeriod(endKey string, lp, rp SidePeriod, report *Report) PeriodComparison {
	pc := PeriodComparison{End: lp.End, Label: lp.Label}
	if pc.Label == "" {
		pc.Label = rp.Label
	}

	for _, key := range CanonicalKeys {
		lv, hasL := lp.Values[key]
		rv, hasR := rp.Values[key]
		if (!hasL || lv == nil) && (!hasR || rv == nil) {
			continue
		}
		if !hasL || lv == nil {
			report.Notes = append(report.Notes,
				fmt.Sprintf("%s %s: only %s carries a value (%.2f)", key, endKey, report.RightName, *rv))
			continue
		}
		if !hasR || rv == nil {
			report.Notes = append(report.Notes,
				fmt.Sprintf("%s %s: only %s carries a value (%.2f)", key, endKey, report.LeftName, *lv))
			continue
		}

		d := Diff{
			Key:      key,
			Left:     lv,
			Right:    rv,
			Delta:    *rv - *lv,
			PctDelta: PctDelta(*lv, *rv),
			Material: IsMaterial(*lv, *rv),
		}
		if d.Material {
			band := e.Thresholds.ForCategory(KeyCategory(key))
			d.Level = band.Level(math.Abs(d.Delta), guardedPct(*lv, *rv))
		}

		pc.Diffs = append(pc.Diffs, d)
		report.Summary.CellsCompared++
		if d.Material {
			report.Summary.MaterialDiffs++
		}
		switch d.Level {
		case "warn":
			report.Summary.Warnings++
		case "block":
			report.Summary.Blocks++
		}

		report.Flags = append(report.Flags, classifyPair(key, endKey, *lv, *rv)...)
	}
	return pc
}

// grade turns the counts into a verdict and a promotion decision. The
// verdict describes the run; Pass decides whether the new rendering may
// replace the old one. A WARN run can still pass when nothing blocked,
// no error-class anomaly fired, and every headline key agreed.
func (e *Engine) grade(report *Report) (string, bool) {
	verdict := VerdictWarn
	switch {
	case report.Summary.Blocks > 0:
		verdict = VerdictBlock
	case report.Summary.MaterialDiffs == 0 && report.Summary.ErrorFlags == 0:
		verdict = VerdictPass
	}

	pass := verdict != VerdictBlock &&
		report.Summary.ErrorFlags == 0 &&
		!e.headlineBreached(report)
	return verdict, pass
}

func (e *Engine) headlineBreached(report *Report) bool {
	headline := make(map[string]bool, len(e.HeadlineKeys))
	for _, k := range e.HeadlineKeys {
		headline[k] = true
	}
	for _, pc := range report.Periods {
		for _, d := range pc.Diffs {
			if d.Material && headline[d.Key] {
				return true
			}
		}
	}
	return false
}

func periodsByEnd(s Side) map[string]SidePeriod {
	m := make(map[string]SidePeriod, len(s.Periods))
	for _, p := range s.Periods {
		m[p.End.Format("2006-01-02")] = p
	}
	return m
}

func unionEnds(a, b map[string]SidePeriod) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var ends []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			ends = append(ends, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			ends = append(ends, k)
		}
	}
	sort.Strings(ends)
	return ends
}
