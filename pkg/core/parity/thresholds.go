package parity

// CategoryThreshold is one category's WARN and BLOCK bands. A band trips on
// whichever of the absolute or relative delta crosses first; percentages
// are fractions (0.005 is half a percent).
type CategoryThreshold struct {
	WarnAbs  float64 `yaml:"warn_abs" json:"warn_abs"`
	WarnPct  float64 `yaml:"warn_pct" json:"warn_pct"`
	BlockAbs float64 `yaml:"block_abs" json:"block_abs"`
	BlockPct float64 `yaml:"block_pct" json:"block_pct"`
}

// Level grades a delta against the bands: "block" beats "warn" beats "".
func (c CategoryThreshold) Level(absDelta, pct float64) string {
	if absDelta > c.BlockAbs || pct > c.BlockPct {
		return "block"
	}
	if absDelta > c.WarnAbs || pct > c.WarnPct {
		return "warn"
	}
	return ""
}

// Thresholds carries the per-category bands for one comparison run.
// Configuration is threaded in explicitly; nothing reads process globals.
type Thresholds struct {
	Income  CategoryThreshold `yaml:"income" json:"income"`
	Balance CategoryThreshold `yaml:"balance" json:"balance"`
	Ratio   CategoryThreshold `yaml:"ratio" json:"ratio"`
}

// ForCategory selects the band set for a canonical key's category.
func (t Thresholds) ForCategory(category string) CategoryThreshold {
	switch category {
	case CategoryBalance:
		return t.Balance
	case CategoryRatio:
		return t.Ratio
	default:
		return t.Income
	}
}

// DefaultThresholds mirrors config/spreading.yaml. Income lines warn at a
// hundred dollars, balance lines at a thousand; ratios are graded on their
// own scale, a 0.01 move in leverage being real money.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Income: CategoryThreshold{
			WarnAbs:  100,
			WarnPct:  0.005,
			BlockAbs: 10000,
			BlockPct: 0.05,
		},
		Balance: CategoryThreshold{
			WarnAbs:  1000,
			WarnPct:  0.005,
			BlockAbs: 50000,
			BlockPct: 0.05,
		},
		Ratio: CategoryThreshold{
			WarnAbs:  0.01,
			WarnPct:  0.01,
			BlockAbs: 0.25,
			BlockPct: 0.10,
		},
	}
}
