// Command parity compares a deal's legacy statement export against the
// spreading engine's rendering and prints the graded report. It exits
// non-zero when the comparison would not promote the new rendering, so
// migration scripts can gate on it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	appConfig "loan_spreading/pkg/config"
	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/legacy"
	"loan_spreading/pkg/core/metrics"
	"loan_spreading/pkg/core/parity"
	"loan_spreading/pkg/core/spread"
)

func main() {
	factsPath := flag.String("facts", "", "Path to the deal's fact export (JSON)")
	legacyPath := flag.String("legacy", "", "Path to the legacy statement export (JSON)")
	legacyHTMLPath := flag.String("legacy-html", "", "Path to the legacy renderer's HTML dump")
	configPath := flag.String("config", "config/spreading.yaml", "Path to the spreading config")
	outPath := flag.String("out", "", "Write the Markdown report to this file")
	htmlOutPath := flag.String("html", "", "Write the rendered HTML report to this file")
	quiet := flag.Bool("quiet", false, "Suppress the report body; print the verdict line only")
	flag.Parse()

	if *factsPath == "" {
		log.Fatal("Error: -facts is required.")
	}
	if (*legacyPath == "") == (*legacyHTMLPath == "") {
		log.Fatal("Error: exactly one of -legacy or -legacy-html is required.")
	}

	cfg, err := appConfig.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	registry := metrics.DefaultRegistry()
	if cfg.RegistryPath != "" {
		registry, err = metrics.LoadRegistry(cfg.RegistryPath)
		if err != nil {
			log.Fatalf("Metric registry load failed: %v", err)
		}
	}

	fmt.Println("🚀 Parity Check Starting...")

	// 1. Load both sides.
	ff, err := ingest.LoadFacts(*factsPath)
	if err != nil {
		log.Fatalf("Fact load failed: %v", err)
	}
	fmt.Printf("📂 Deal %s: %d facts\n", ff.DealID, len(ff.Facts))

	var stmts []legacy.Statement
	if *legacyPath != "" {
		stmts, err = legacy.LoadStatementsFile(*legacyPath)
	} else {
		var html []byte
		html, err = os.ReadFile(*legacyHTMLPath)
		if err == nil {
			stmts, err = legacy.ParseHTML(string(html))
		}
	}
	if err != nil {
		log.Fatalf("Legacy export load failed: %v", err)
	}
	fmt.Printf("📂 Legacy export: %d statements\n", len(stmts))

	// 2. Build and evaluate the engine side.
	builderCfg := spread.DefaultConfig()
	if cfg.YearCutoff > 0 {
		builderCfg.YearCutoff = cfg.YearCutoff
	}
	model, err := spread.NewBuilder(builderCfg).Build(ff.DealID, ff.Facts)
	if err != nil {
		log.Fatalf("Model build failed: %v", err)
	}

	metricsByPeriod := make(map[string]map[string]*float64, len(model.Periods))
	for _, p := range model.Periods {
		values, err := metrics.Evaluate(registry.Metrics, metrics.BaseValues(p.Income, p.Balance, p.CashFlow))
		if err != nil {
			log.Fatalf("Metric evaluation failed: %v", err)
		}
		metricsByPeriod[p.PeriodEnd.Format("2006-01-02")] = values
	}

	// 3. Compare and report.
	engine := cfg.ParityEngine()
	report := engine.Compare(ff.DealID, parity.FromLegacy(stmts), parity.FromModel(model, metricsByPeriod))

	markdown := report.BuildMarkdown()
	if !*quiet {
		fmt.Println()
		fmt.Print(markdown)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(markdown), 0644); err != nil {
			log.Fatalf("Report write failed: %v", err)
		}
		fmt.Printf("📄 Markdown report written to %s\n", *outPath)
	}
	if *htmlOutPath != "" {
		html, err := report.RenderHTML()
		if err != nil {
			log.Fatalf("HTML render failed: %v", err)
		}
		if err := os.WriteFile(*htmlOutPath, []byte(html), 0644); err != nil {
			log.Fatalf("Report write failed: %v", err)
		}
		fmt.Printf("📄 HTML report written to %s\n", *htmlOutPath)
	}

	if report.Pass {
		fmt.Printf("✅ Verdict: %s (deal %s may promote)\n", report.Verdict, report.DealID)
		return
	}
	fmt.Printf("❌ Verdict: %s (deal %s held back)\n", report.Verdict, report.DealID)
	os.Exit(1)
}
