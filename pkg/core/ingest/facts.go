// Package ingest loads extraction snapshots: the per-deal fact arrays the
// upstream document pipeline exports. Exports arrive from several extractor
// versions with the usual JSON damage, so parsing is tolerant; anything the
// facts say is passed through untouched for the builder to judge.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loan_spreading/pkg/core/utils"
	"loan_spreading/pkg/models"
)

// FactFile is one exported extraction snapshot.
type FactFile struct {
	DealID string        `json:"deal_id"`
	BankID string        `json:"bank_id,omitempty"`
	Facts  []models.Fact `json:"facts"`
}

// LoadFacts reads and parses a fact export from disk.
func LoadFacts(path string) (*FactFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fact file %s: %w", path, err)
	}
	ff, err := ParseFacts(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fact file %s: %w", path, err)
	}
	return ff, nil
}

// ParseFacts decodes a fact export. Accepts either the wrapped form
// {deal_id, facts: [...]} or a bare fact array; falls back to repair when
// strict parsing fails.
func ParseFacts(data []byte) (*FactFile, error) {
	text := string(data)

	var ff FactFile
	if _, err := utils.SmartParse(text, &ff); err == nil && (ff.DealID != "" || len(ff.Facts) > 0) {
		normalize(&ff)
		return &ff, nil
	}

	var bare []models.Fact
	if _, err := utils.SmartParse(text, &bare); err == nil && len(bare) > 0 {
		ff = FactFile{Facts: bare}
		normalize(&ff)
		return &ff, nil
	}

	return nil, fmt.Errorf("fact export matched neither wrapped nor bare form")
}

// DirLoader serves fact exports from a directory laid out as one
// <deal_id>.json file per deal.
type DirLoader struct {
	Dir string
}

// NewDirLoader creates a loader over a fact export directory.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{Dir: dir}
}

// LoadFacts reads the deal's export. The deal id is part of the file name,
// so ids carrying path separators are rejected outright.
func (l *DirLoader) LoadFacts(ctx context.Context, dealID string) (*FactFile, error) {
	if dealID == "" || strings.ContainsAny(dealID, `/\`) {
		return nil, fmt.Errorf("invalid deal id %q", dealID)
	}
	ff, err := LoadFacts(filepath.Join(l.Dir, dealID+".json"))
	if err != nil {
		return nil, err
	}
	if ff.DealID == "" {
		ff.DealID = dealID
	}
	return ff, nil
}

// normalize trims and uppercases the identifying fields. Extractor versions
// disagree on casing; the builder's dictionary is uppercase.
func normalize(ff *FactFile) {
	ff.DealID = strings.TrimSpace(ff.DealID)
	ff.BankID = strings.TrimSpace(ff.BankID)
	for i := range ff.Facts {
		f := &ff.Facts[i]
		f.Type = strings.ToUpper(strings.TrimSpace(f.Type))
		f.Key = strings.ToUpper(strings.TrimSpace(f.Key))
		f.PeriodEnd = strings.TrimSpace(f.PeriodEnd)
	}
}
