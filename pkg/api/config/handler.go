package config

import (
	"encoding/json"
	"net/http"

	appConfig "loan_spreading/pkg/config"
)

type Response struct {
	Config          *appConfig.SpreadingConfig `json:"config"`
	RegistryVersion string                     `json:"registry_version"`
	EngineVersion   string                     `json:"engine_version"`
}

// Handler holds dependencies for config endpoints
type Handler struct {
	Config          *appConfig.SpreadingConfig
	RegistryVersion string
	EngineVersion   string
}

// NewHandler creates a new config handler
func NewHandler(cfg *appConfig.SpreadingConfig, registryVersion, engineVersion string) *Handler {
	return &Handler{
		Config:          cfg,
		RegistryVersion: registryVersion,
		EngineVersion:   engineVersion,
	}
}

// HandleConfig returns the effective runtime configuration plus the version
// stamps every snapshot carries, so operators can line audit records up with
// what the server is actually running.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers for local dev
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	resp := Response{
		Config:          h.Config,
		RegistryVersion: h.RegistryVersion,
		EngineVersion:   h.EngineVersion,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
