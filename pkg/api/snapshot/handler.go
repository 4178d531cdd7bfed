// Package snapshot exposes the audit trail over HTTP: operators post
// externally computed snapshots and review a deal's history.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"loan_spreading/pkg/models"
)

// Store is the persistence surface the handler needs. Both the Postgres
// repository and the embedded vault satisfy it.
type Store interface {
	Persist(ctx context.Context, snap *models.ModelSnapshot) (string, bool, error)
	Load(ctx context.Context, id string) (*models.ModelSnapshot, error)
	ListByDeal(ctx context.Context, dealID string, limit int) ([]*models.ModelSnapshot, error)
}

type PersistResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// Handler holds dependencies for snapshot endpoints
type Handler struct {
	Store Store
}

// NewHandler creates a new snapshot handler
func NewHandler(store Store) *Handler {
	return &Handler{Store: store}
}

// HandleSnapshots dispatches on method: POST persists a snapshot, GET
// retrieves one by id or lists a deal's history.
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	// CORS
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case "OPTIONS":
		w.WriteHeader(http.StatusOK)
	case "POST":
		h.persist(w, r)
	case "GET":
		h.query(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) persist(w http.ResponseWriter, r *http.Request) {
	var snap models.ModelSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if snap.DealID == "" || snap.OutputDigest == "" {
		http.Error(w, "deal_id and output_digest are required", http.StatusBadRequest)
		return
	}

	id, created, err := h.Store.Persist(r.Context(), &snap)
	if err != nil {
		http.Error(w, fmt.Sprintf("Snapshot persist failed: %v", err), http.StatusInternalServerError)
		return
	}
	if created {
		fmt.Printf("[SNAPSHOT] Stored snapshot %s for deal %s\n", id, snap.DealID)
	} else {
		fmt.Printf("[SNAPSHOT] Duplicate outputs for deal %s, returning snapshot %s\n", snap.DealID, id)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PersistResponse{ID: id, Created: created})
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		snap, err := h.Store.Load(r.Context(), id)
		if err != nil {
			http.Error(w, fmt.Sprintf("Snapshot lookup failed: %v", err), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
		return
	}

	dealID := r.URL.Query().Get("deal_id")
	if dealID == "" {
		http.Error(w, "deal_id or id query parameter is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	snaps, err := h.Store.ListByDeal(r.Context(), dealID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Snapshot list failed: %v", err), http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []*models.ModelSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}
