// Package modes decides which computation path is authoritative for a
// request: the legacy renderer, the new engine, or both (shadow). The
// decision is a pure function of configuration so every caller can ask on
// every request without coordination.
package modes

import "fmt"

const (
	ModeLegacy  = "legacy"
	ModeShadow  = "shadow"
	ModePrimary = "primary"
)

// Valid reports whether s names a known mode.
func Valid(s string) bool {
	switch s {
	case ModeLegacy, ModeShadow, ModePrimary:
		return true
	}
	return false
}

// Config is the modes block of config/spreading.yaml. Allowlists enroll
// individual deals or banks into shadow while the fleet default stays
// primary; forcing everything back to legacy is what GlobalOverride is for.
type Config struct {
	GlobalOverride string   `yaml:"global_override" json:"global_override,omitempty"`
	Mode           string   `yaml:"mode" json:"mode,omitempty"`
	ShadowDeals    []string `yaml:"shadow_deals" json:"shadow_deals,omitempty"`
	ShadowBanks    []string `yaml:"shadow_banks" json:"shadow_banks,omitempty"`
}

// Validate rejects unknown mode names at load time so Select never has to.
func (c Config) Validate() error {
	if c.GlobalOverride != "" && !Valid(c.GlobalOverride) {
		return fmt.Errorf("unknown global_override mode %q", c.GlobalOverride)
	}
	if c.Mode != "" && !Valid(c.Mode) {
		return fmt.Errorf("unknown spreading mode %q", c.Mode)
	}
	return nil
}

// Context identifies who is asking. Only privileged surfaces (operator
// tooling, the migration pipeline) participate in staged rollout.
type Context struct {
	DealID     string `json:"deal_id,omitempty"`
	BankID     string `json:"bank_id,omitempty"`
	Privileged bool   `json:"privileged"`
}

// Decision carries the selected mode and the rule that produced it.
type Decision struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

// Select resolves the mode for one request. Rules apply in strict priority
// order and the first match wins.
func Select(cfg Config, ctx Context) Decision {
	// 1. Non-privileged surfaces never see the rollout machinery.
	if !ctx.Privileged {
		return Decision{Mode: ModePrimary, Reason: "non-privileged context always uses the primary path"}
	}

	// 2. Global override trumps everything else.
	if Valid(cfg.GlobalOverride) {
		return Decision{Mode: cfg.GlobalOverride, Reason: fmt.Sprintf("global override forces %q", cfg.GlobalOverride)}
	}

	// 3. Explicit spreading mode.
	if Valid(cfg.Mode) {
		return Decision{Mode: cfg.Mode, Reason: fmt.Sprintf("spreading mode explicitly set to %q", cfg.Mode)}
	}

	// 4. Per-deal shadow enrollment.
	if ctx.DealID != "" && contains(cfg.ShadowDeals, ctx.DealID) {
		return Decision{Mode: ModeShadow, Reason: fmt.Sprintf("deal %s is enrolled in the shadow rollout", ctx.DealID)}
	}

	// 5. Per-bank shadow enrollment.
	if ctx.BankID != "" && contains(cfg.ShadowBanks, ctx.BankID) {
		return Decision{Mode: ModeShadow, Reason: fmt.Sprintf("bank %s is enrolled in the shadow rollout", ctx.BankID)}
	}

	// 6. Fleet default.
	return Decision{Mode: ModePrimary, Reason: "no rule matched; primary path is the default"}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
