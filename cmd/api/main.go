package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"loan_spreading/pkg/api/config"
	"loan_spreading/pkg/api/modes"
	"loan_spreading/pkg/api/parity"
	"loan_spreading/pkg/api/snapshot"
	"loan_spreading/pkg/api/spread"
	appConfig "loan_spreading/pkg/config"
	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/core/metrics"
	"loan_spreading/pkg/core/pipeline"
	coreSpread "loan_spreading/pkg/core/spread"
	"loan_spreading/pkg/core/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()
	ctx := context.Background()

	// Runtime configuration; a missing file runs on defaults.
	cfgPath := os.Getenv("SPREADING_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/spreading.yaml"
	}
	cfg, err := appConfig.Load(cfgPath)
	if err != nil {
		fmt.Printf("[WARNING] Failed to load config %s: %v\n", cfgPath, err)
		fmt.Println("  Falling back to built-in defaults")
		cfg = appConfig.Default()
	}

	// Metric registry: file-based when configured, built-in otherwise.
	registry := metrics.DefaultRegistry()
	if cfg.RegistryPath != "" {
		loaded, err := metrics.LoadRegistry(cfg.RegistryPath)
		if err != nil {
			fmt.Printf("[WARNING] Failed to load metric registry %s: %v\n", cfg.RegistryPath, err)
			fmt.Println("  Falling back to built-in registry")
		} else {
			registry = loaded
		}
	}
	fmt.Printf("[SPREAD] Metric registry %s (%d metrics)\n", registry.Version, len(registry.Metrics))

	builderCfg := coreSpread.DefaultConfig()
	if cfg.YearCutoff > 0 {
		builderCfg.YearCutoff = cfg.YearCutoff
	}
	builderCfg.Production = os.Getenv("APP_ENV") == "production"
	builder := coreSpread.NewBuilder(builderCfg)

	// Audit storage: Postgres when DATABASE_URL is set, otherwise the
	// embedded vault. The engine still computes with neither.
	var snapshotStore snapshot.Store
	var renderingStore pipeline.RenderingStore
	if os.Getenv("DATABASE_URL") != "" {
		if err := store.InitDB(ctx); err != nil {
			fmt.Printf("[WARNING] Database init failed: %v\n", err)
		} else {
			fmt.Println("[SPREAD] Audit storage: Postgres")
			snapshotStore = store.NewSnapshotRepo(store.GetPool())
			renderingStore = store.NewRenderingRepo(store.GetPool())
			defer store.Close()
		}
	}
	if snapshotStore == nil {
		vaultDir := os.Getenv("SNAPSHOT_VAULT_DIR")
		if vaultDir == "" {
			vaultDir = ".vault/spreading"
		}
		vault, err := store.OpenVault(vaultDir)
		if err != nil {
			fmt.Printf("[WARNING] Vault open failed at %s: %v\n", vaultDir, err)
			fmt.Println("  Snapshots will not be persisted")
		} else {
			fmt.Printf("[SPREAD] Audit storage: embedded vault at %s\n", vaultDir)
			snapshotStore = vault
			renderingStore = vault
			defer vault.Close()
		}
	}

	// Pipeline orchestrator over the file-drop loaders.
	factsDir := os.Getenv("FACTS_DIR")
	if factsDir == "" {
		factsDir = "data/facts"
	}
	legacyDir := os.Getenv("LEGACY_EXPORT_DIR")
	if legacyDir == "" {
		legacyDir = "data/legacy"
	}
	orch := pipeline.New(ingest.NewDirLoader(factsDir))
	orch.SetBuilder(builder)
	orch.SetRegistry(registry)
	orch.SetParityEngine(cfg.ParityEngine())
	orch.SetModes(cfg.Modes)
	orch.SetLegacyLoader(legacy.NewDirExport(legacyDir))
	if snapshotStore != nil {
		orch.SetSnapshotStore(snapshotStore)
	}
	if renderingStore != nil {
		orch.SetRenderingStore(renderingStore)
	}

	// Spreading endpoints
	spreadHandler := spread.NewHandler(orch)
	http.HandleFunc("/api/spread/build", spreadHandler.HandleBuild)

	// Parity endpoints
	parityHandler := parity.NewHandler(builder, registry, cfg.ParityEngine())
	http.HandleFunc("/api/parity/run", parityHandler.HandleRun)

	// Snapshot endpoints
	if snapshotStore != nil {
		snapshotHandler := snapshot.NewHandler(snapshotStore)
		http.HandleFunc("/api/snapshots", snapshotHandler.HandleSnapshots)
	} else {
		fmt.Println("[WARNING] Snapshot endpoints disabled: no audit storage")
	}

	// Mode decision endpoints
	modesHandler := modes.NewHandler(cfg.Modes)
	http.HandleFunc("/api/modes/decision", modesHandler.HandleDecision)

	// Config endpoints
	configHandler := config.NewHandler(cfg, registry.Version, pipeline.EngineVersion)
	http.HandleFunc("/api/config/spreading", configHandler.HandleConfig)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	fmt.Printf("API server starting on :%s...\n", port)
	fmt.Println("  - POST /api/spread/build")
	fmt.Println("  - POST /api/parity/run")
	fmt.Println("  - POST /api/snapshots")
	fmt.Println("  - GET  /api/snapshots?deal_id=...")
	fmt.Println("  - POST /api/modes/decision")
	fmt.Println("  - GET  /api/config/spreading")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		fmt.Printf("[FATAL] Server failed to start: %v\n", err)
		os.Exit(1)
	}
}
