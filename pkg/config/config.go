// Package config loads the spreading engine's runtime configuration from
// config/spreading.yaml. Everything in it is plain data handed to the
// components that need it; nothing here is read through globals.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"loan_spreading/pkg/core/modes"
	"loan_spreading/pkg/core/parity"
)

// SpreadingConfig is the full config/spreading.yaml shape.
type SpreadingConfig struct {
	// RegistryPath points at the metric definitions (hjson). Empty means
	// the built-in registry.
	RegistryPath string `yaml:"registry" json:"registry,omitempty"`

	// YearCutoff rejects fact period dates before this year as sentinels.
	YearCutoff int `yaml:"year_cutoff" json:"year_cutoff"`

	// HeadlineKeys are the metrics whose disagreement fails a parity run.
	HeadlineKeys []string `yaml:"headline_keys" json:"headline_keys"`

	Thresholds parity.Thresholds `yaml:"thresholds" json:"thresholds"`
	Modes      modes.Config      `yaml:"modes" json:"modes"`
}

// Default returns the configuration used when no file is present.
func Default() *SpreadingConfig {
	return &SpreadingConfig{
		YearCutoff:   1980,
		HeadlineKeys: parity.DefaultHeadlineKeys,
		Thresholds:   parity.DefaultThresholds(),
	}
}

// Load reads and validates a yaml config file. A missing file is not an
// error: it returns the defaults so dev environments run config-free.
func Load(path string) (*SpreadingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Modes.Validate(); err != nil {
		return nil, fmt.Errorf("invalid modes config in %s: %w", path, err)
	}
	if cfg.YearCutoff <= 0 {
		cfg.YearCutoff = 1980
	}
	if len(cfg.HeadlineKeys) == 0 {
		cfg.HeadlineKeys = parity.DefaultHeadlineKeys
	}
	return cfg, nil
}

// ParityEngine builds a comparison engine from this configuration.
func (c *SpreadingConfig) ParityEngine() *parity.Engine {
	return &parity.Engine{
		Thresholds:   c.Thresholds,
		HeadlineKeys: c.HeadlineKeys,
	}
}
