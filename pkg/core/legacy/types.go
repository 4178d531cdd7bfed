// Package legacy models the statement exports produced by the legacy
// spreading renderer and normalizes them for parity comparison. Exports
// arrive either as JSON or as the renderer's HTML table dump.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Statement is one rendered financial statement: named period columns and
// labeled rows. Rows carry either one scalar or a per-column value map.
type Statement struct {
	DealID  string   `json:"deal_id"`
	Type    string   `json:"statement_type"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Column is one rendered period. Aggregate columns (TTM, YTD rollups) never
// participate in parity alignment; only discrete period-end columns do.
type Column struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	PeriodEnd string `json:"period_end"`
	Aggregate bool   `json:"aggregate"`
}

// Row is one statement line. Header rows group sections and are excluded
// from comparison.
type Row struct {
	Label  string              `json:"label"`
	Key    string              `json:"key"`
	Header bool                `json:"header"`
	Scalar *float64            `json:"scalar,omitempty"`
	Values map[string]*float64 `json:"values,omitempty"`
}

// Value resolves the row's value for a column key, preferring the
// per-column map over the scalar.
func (r *Row) Value(columnKey string) *float64 {
	if r.Values != nil {
		if v, ok := r.Values[columnKey]; ok {
			return v
		}
	}
	return r.Scalar
}

// LoadStatements decodes a legacy JSON export.
func LoadStatements(r io.Reader) ([]Statement, error) {
	var stmts []Statement
	if err := json.NewDecoder(r).Decode(&stmts); err != nil {
		return nil, fmt.Errorf("decode legacy export: %w", err)
	}
	return stmts, nil
}

// LoadStatementsFile reads a legacy JSON export from disk.
func LoadStatementsFile(path string) ([]Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open legacy export: %w", err)
	}
	defer f.Close()
	return LoadStatements(f)
}

// DirExport serves legacy exports from a directory laid out as one
// <deal_id>.json file per deal.
type DirExport struct {
	Dir string
}

// NewDirExport creates a loader over a legacy export directory.
func NewDirExport(dir string) *DirExport {
	return &DirExport{Dir: dir}
}

// LoadStatements reads the deal's export. Ids carrying path separators are
// rejected because the id is part of the file name.
func (d *DirExport) LoadStatements(ctx context.Context, dealID string) ([]Statement, error) {
	if dealID == "" || strings.ContainsAny(dealID, `/\`) {
		return nil, fmt.Errorf("invalid deal id %q", dealID)
	}
	return LoadStatementsFile(filepath.Join(d.Dir, dealID+".json"))
}

// =============================================================================
// COLUMN CLASSIFICATION
// =============================================================================

var aggregateMarkers = []string{"ttm", "trailing", "ltm", "ytd", "year to date", "rolling"}

// IsAggregate classifies a column as a rollup. The explicit flag wins; the
// label is the fallback for older exports that never set it.
func IsAggregate(c Column) bool {
	if c.Aggregate {
		return true
	}
	lower := strings.ToLower(c.Label + " " + c.Key)
	for _, marker := range aggregateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var (
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usDatePattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	longDatePattern = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})`)
)

// ColumnPeriodEnd extracts the column's period end date, trying the explicit
// field first and then the rendered label.
func ColumnPeriodEnd(c Column) (time.Time, bool) {
	for _, candidate := range []string{c.PeriodEnd, c.Label, c.Key} {
		if t, ok := parseDateText(candidate); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateText(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return dateFromParts(m[1], m[2], m[3])
	}
	if m := usDatePattern.FindStringSubmatch(text); m != nil {
		return dateFromParts(m[3], m[1], m[2])
	}
	if m := longDatePattern.FindStringSubmatch(text); m != nil {
		t, err := time.Parse("January 2 2006", fmt.Sprintf("%s %s %s", m[1], m[2], m[3]))
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func dateFromParts(year, month, day string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if y == 0 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

// =============================================================================
// ROW LABEL MAPPING
// =============================================================================

// labelDictionary maps rendered row labels onto canonical metric keys.
// Lookup is case-insensitive after collapsing whitespace and punctuation.
var labelDictionary = map[string]string{
	"total revenue":             "TOTAL_REVENUE",
	"revenue":                   "TOTAL_REVENUE",
	"total sales":               "TOTAL_REVENUE",
	"net sales":                 "TOTAL_REVENUE",
	"cost of goods sold":        "COST_OF_GOODS_SOLD",
	"cost of sales":             "COST_OF_GOODS_SOLD",
	"cogs":                      "COST_OF_GOODS_SOLD",
	"total operating expenses":  "TOTAL_OPERATING_EXPENSES",
	"operating expenses":        "TOTAL_OPERATING_EXPENSES",
	"ebitda":                    "EBITDA",
	"net income":                "NET_INCOME",
	"net profit":                "NET_INCOME",
	"total assets":              "TOTAL_ASSETS",
	"total liabilities":         "TOTAL_LIABILITIES",
	"total equity":              "TOTAL_EQUITY",
	"total stockholders equity": "TOTAL_EQUITY",
	"members equity":            "TOTAL_EQUITY",
	"net worth":                 "TOTAL_EQUITY",
	"total debt":                "TOTAL_DEBT",
	"funded debt":               "TOTAL_DEBT",
	"debt to ebitda":            "DEBT_TO_EBITDA",
	"debt ebitda":               "DEBT_TO_EBITDA",
	"leverage ratio":            "DEBT_TO_EBITDA",
}

var labelCleaner = regexp.MustCompile(`[^a-z0-9 ]+`)

// CanonicalRowKey resolves a row to its canonical metric key: the explicit
// key if the export set one, otherwise the label dictionary. Empty means
// the row is not a canonical line.
func CanonicalRowKey(r Row) string {
	if r.Key != "" {
		return r.Key
	}
	label := strings.ToLower(strings.TrimSpace(r.Label))
	label = labelCleaner.ReplaceAllString(label, "")
	label = strings.Join(strings.Fields(label), " ")
	return labelDictionary[label]
}
