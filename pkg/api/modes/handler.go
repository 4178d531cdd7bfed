// Package modes exposes the rollout mode decision over HTTP so operator
// tooling can see which path a request would take before issuing it.
package modes

import (
	"encoding/json"
	"net/http"

	coreModes "loan_spreading/pkg/core/modes"
)

// Handler holds dependencies for mode endpoints
type Handler struct {
	Config coreModes.Config
}

// NewHandler creates a new modes handler
func NewHandler(cfg coreModes.Config) *Handler {
	return &Handler{Config: cfg}
}

// HandleDecision resolves the mode for a posted request context.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
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

	var reqCtx coreModes.Context
	if err := json.NewDecoder(r.Body).Decode(&reqCtx); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	decision := coreModes.Select(h.Config, reqCtx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}
