package parity

import (
	"encoding/json"
	"fmt"
	"math"
)

// Materiality: a difference matters if it exceeds a dollar or moves the
// value by more than a basis point against the legacy figure. The
// max(1, |left|) guard keeps near-zero denominators from promoting noise.
const (
	MaterialAbsTolerance = 1.00
	MaterialPctTolerance = 0.0001
)

// IsMaterial applies the combined absolute-or-relative materiality test.
func IsMaterial(left, right float64) bool {
	delta := math.Abs(right - left)
	if delta > MaterialAbsTolerance {
		return true
	}
	return delta/math.Max(1, math.Abs(left)) > MaterialPctTolerance
}

// PctDelta is the reported relative difference: delta over |left|, positive
// infinity when the legacy side is zero and the model side is not.
func PctDelta(left, right float64) float64 {
	if left == 0 {
		if right == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (right - left) / math.Abs(left)
}

// guardedPct is the threshold-facing ratio, bounded by the same guard the
// materiality test uses so an infinite reported pctDelta cannot blow
// through every threshold band on its own.
func guardedPct(left, right float64) float64 {
	return math.Abs(right-left) / math.Max(1, math.Abs(left))
}

// Diff is one compared cell: a canonical key in one aligned period.
type Diff struct {
	Key      string   `json:"key"`
	Left     *float64 `json:"left"`
	Right    *float64 `json:"right"`
	Delta    float64  `json:"delta"`
	PctDelta float64  `json:"pct_delta"`
	Material bool     `json:"material"`
	Level    string   `json:"level,omitempty"` // "", "warn" or "block"
}

// MarshalJSON renders an infinite pctDelta as null; JSON has no Infinity.
func (d Diff) MarshalJSON() ([]byte, error) {
	type alias Diff
	if !math.IsInf(d.PctDelta, 0) {
		return json.Marshal(alias(d))
	}
	return json.Marshal(struct {
		alias
		PctDelta interface{} `json:"pct_delta"`
	}{alias: alias(d)})
}

// Flag severities and kinds for classified special cases.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"

	FlagSignFlip      = "SIGN_FLIP"
	FlagScalingError  = "SCALING_ERROR"
	FlagZeroFill      = "ZERO_FILL"
	FlagMissingPeriod = "MISSING_PERIOD"
	FlagExtraPeriod   = "EXTRA_PERIOD"
)

// Flag is one classified anomaly, surfaced instead of thrown.
type Flag struct {
	Kind      string   `json:"kind"`
	Severity  string   `json:"severity"`
	Key       string   `json:"key,omitempty"`
	PeriodEnd string   `json:"period_end,omitempty"`
	Left      *float64 `json:"left,omitempty"`
	Right     *float64 `json:"right,omitempty"`
	Detail    string   `json:"detail"`
}

// Scaling detection: a ratio within 10% of 1000x either way is a
// units-vs-thousands mistake, not a business movement.
const (
	scalingFactor    = 1000.0
	scalingTolerance = 0.10
)

func isScalingRatio(ratio float64) bool {
	if ratio <= 0 {
		return false
	}
	if ratio >= scalingFactor*(1-scalingTolerance) && ratio <= scalingFactor*(1+scalingTolerance) {
		return true
	}
	inverse := 1.0 / ratio
	return inverse >= scalingFactor*(1-scalingTolerance) && inverse <= scalingFactor*(1+scalingTolerance)
}

// classifyPair runs the special-case detectors over one two-sided value
// pair. Sign flips and scaling errors are errors; zero-fill is a warning.
func classifyPair(key, periodEnd string, left, right float64) []Flag {
	var flags []Flag
	l, r := left, right

	if l != 0 && r != 0 && (l < 0) != (r < 0) {
		flags = append(flags, Flag{
			Kind: FlagSignFlip, Severity: SeverityError,
			Key: key, PeriodEnd: periodEnd, Left: &l, Right: &r,
			Detail: fmt.Sprintf("%s %s: opposite signs (%.2f vs %.2f)", key, periodEnd, l, r),
		})
	}

	if l != 0 && r != 0 && isScalingRatio(math.Abs(r)/math.Abs(l)) {
		flags = append(flags, Flag{
			Kind: FlagScalingError, Severity: SeverityError,
			Key: key, PeriodEnd: periodEnd, Left: &l, Right: &r,
			Detail: fmt.Sprintf("%s %s: ~1000x magnitude gap (%.2f vs %.2f), likely thousands vs units", key, periodEnd, l, r),
		})
	}

	if (l == 0) != (r == 0) {
		flags = append(flags, Flag{
			Kind: FlagZeroFill, Severity: SeverityWarning,
			Key: key, PeriodEnd: periodEnd, Left: &l, Right: &r,
			Detail: fmt.Sprintf("%s %s: one side is exactly zero (%.2f vs %.2f), possible dropped data", key, periodEnd, l, r),
		})
	}

	return flags
}
