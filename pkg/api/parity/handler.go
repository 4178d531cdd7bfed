// Package parity exposes ad hoc legacy-versus-engine comparisons over HTTP.
// Reviewers post a deal's facts together with the legacy export and get the
// graded report back without touching any store.
package parity

import (
	"encoding/json"
	"fmt"
	"net/http"

	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/core/metrics"
	coreParity "loan_spreading/pkg/core/parity"
	"loan_spreading/pkg/core/spread"
	"loan_spreading/pkg/models"
)

type RunRequest struct {
	DealID           string             `json:"deal_id"`
	Facts            []models.Fact      `json:"facts"`
	LegacyStatements []legacy.Statement `json:"legacy_statements,omitempty"`
	LegacyHTML       string             `json:"legacy_html,omitempty"`
	// Format selects the response body: "json" (default), "markdown", "html".
	Format string `json:"format,omitempty"`
}

// Handler holds dependencies for parity endpoints
type Handler struct {
	Builder  *spread.Builder
	Registry *metrics.Registry
	Engine   *coreParity.Engine
}

// NewHandler creates a new parity handler
func NewHandler(builder *spread.Builder, registry *metrics.Registry, engine *coreParity.Engine) *Handler {
	return &Handler{
		Builder:  builder,
		Registry: registry,
		Engine:   engine,
	}
}

// HandleRun builds the model side from the posted facts, normalizes the
// legacy side, and returns the comparison report.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	// CORS
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.DealID == "" {
		http.Error(w, "deal_id is required", http.StatusBadRequest)
		return
	}
	if len(req.LegacyStatements) == 0 && req.LegacyHTML == "" {
		http.Error(w, "legacy_statements or legacy_html is required", http.StatusBadRequest)
		return
	}

	stmts := req.LegacyStatements
	if len(stmts) == 0 {
		parsed, err := legacy.ParseHTML(req.LegacyHTML)
		if err != nil {
			http.Error(w, fmt.Sprintf("Legacy HTML parse failed: %v", err), http.StatusBadRequest)
			return
		}
		stmts = parsed
	}

	model, err := h.Builder.Build(req.DealID, req.Facts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Model build failed: %v", err), http.StatusInternalServerError)
		return
	}

	metricsByPeriod := make(map[string]map[string]*float64, len(model.Periods))
	for _, p := range model.Periods {
		values, err := metrics.Evaluate(h.Registry.Metrics, metrics.BaseValues(p.Income, p.Balance, p.CashFlow))
		if err != nil {
			http.Error(w, fmt.Sprintf("Metric evaluation failed: %v", err), http.StatusInternalServerError)
			return
		}
		metricsByPeriod[p.PeriodEnd.Format("2006-01-02")] = values
	}

	report := h.Engine.Compare(req.DealID, coreParity.FromLegacy(stmts), coreParity.FromModel(model, metricsByPeriod))
	fmt.Printf("[PARITY] Ad hoc run for deal %s: verdict %s (pass=%v)\n", req.DealID, report.Verdict, report.Pass)

	switch req.Format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, report.BuildMarkdown())
	case "html":
		html, err := report.RenderHTML()
		if err != nil {
			http.Error(w, fmt.Sprintf("Report render failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	default:
		http.Error(w, fmt.Sprintf("Unknown format %q", req.Format), http.StatusBadRequest)
	}
}
