package models

import (
	"encoding/json"
	"time"
)

// ModelSnapshot is the immutable audit record of one authoritative
// computation. InputDigest covers facts + model + metrics + versions;
// OutputDigest covers outputs alone and is the dedup key per deal.
type ModelSnapshot struct {
	ID              string                         `json:"id"`
	DealID          string                         `json:"deal_id"`
	BankID          string                         `json:"bank_id"`
	InputDigest     string                         `json:"input_digest"`
	OutputDigest    string                         `json:"output_digest"`
	RegistryVersion string                         `json:"registry_version"`
	EngineVersion   string                         `json:"engine_version"`
	Model           *FinancialModel                `json:"model"`
	Metrics         map[string]map[string]*float64 `json:"metrics"`
	MetricTrace     map[string][]string            `json:"metric_trace,omitempty"`
	RiskFlags       []string                       `json:"risk_flags"`
	CreatedAt       time.Time                      `json:"created_at"`
}

// RenderingRecord is the "current rendering" row kept per
// (deal, bank, statement type), overwritten on each authoritative
// computation. The digest and version stamps let later replays detect drift.
type RenderingRecord struct {
	DealID          string          `json:"deal_id"`
	BankID          string          `json:"bank_id"`
	StatementType   string          `json:"statement_type"`
	Digest          string          `json:"digest"`
	RegistryVersion string          `json:"registry_version"`
	EngineVersion   string          `json:"engine_version"`
	Payload         json.RawMessage `json:"payload"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
