// Package spread exposes the authoritative spreading pipeline over HTTP.
package spread

import (
	"encoding/json"
	"fmt"
	"net/http"

	"loan_spreading/pkg/core/pipeline"
	"loan_spreading/pkg/models"
)

type BuildRequest struct {
	DealID string        `json:"deal_id"`
	BankID string        `json:"bank_id"`
	Facts  []models.Fact `json:"facts,omitempty"`
}

// Handler holds dependencies for spreading endpoints
type Handler struct {
	Orch *pipeline.Orchestrator
}

// NewHandler creates a new spreading handler
func NewHandler(orch *pipeline.Orchestrator) *Handler {
	return &Handler{Orch: orch}
}

// HandleBuild runs the full pipeline for one deal. Facts may arrive inline;
// without them the orchestrator pulls the deal's extraction snapshot from
// its configured loader.
func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
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

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.DealID == "" {
		http.Error(w, "deal_id is required", http.StatusBadRequest)
		return
	}

	fmt.Printf("[SPREAD] Build request: deal %s (%d inline facts)\n", req.DealID, len(req.Facts))

	var result *pipeline.Result
	var err error
	if len(req.Facts) > 0 {
		result, err = h.Orch.RunWithFacts(r.Context(), req.DealID, req.BankID, req.Facts)
	} else {
		result, err = h.Orch.Run(r.Context(), req.DealID, req.BankID)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Spreading run failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
