// Command spread-engine is the single-shot sidecar: it takes one fact
// export, runs the requested stage, and prints JSON. Upstream schedulers
// shell out to it per deal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"loan_spreading/pkg/core/ingest"
	"loan_spreading/pkg/core/metrics"
	"loan_spreading/pkg/core/spread"
	"loan_spreading/pkg/core/validate"
	"loan_spreading/pkg/models"
)

func main() {
	mode := flag.String("mode", "evaluate", "Mode: build, check or evaluate")
	dataStr := flag.String("data", "", "Inline fact export (JSON)")
	filePath := flag.String("file", "", "Path to a fact export file")
	flag.Parse()

	var ff *ingest.FactFile
	var err error
	switch {
	case *dataStr != "":
		ff, err = ingest.ParseFacts([]byte(*dataStr))
	case *filePath != "":
		ff, err = ingest.LoadFacts(*filePath)
	default:
		fmt.Println("Error: No data provided")
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error parsing facts: %v\n", err)
		os.Exit(1)
	}

	model, err := spread.NewBuilder(spread.DefaultConfig()).Build(ff.DealID, ff.Facts)
	if err != nil {
		fmt.Printf("Error building model: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "build":
		printJSON(model)
	case "check":
		runChecks(model)
	case "evaluate":
		runEvaluation(model)
	default:
		fmt.Printf("Unknown mode: %s\n", *mode)
		os.Exit(1)
	}
}

func runChecks(model *models.FinancialModel) {
	issues := validate.CheckModel(model, 200)
	if len(issues) == 0 {
		fmt.Println("Success: model passes quality checks")
		return
	}
	for _, issue := range issues {
		fmt.Printf("Error: %s %s: %s\n", issue.PeriodEnd, issue.Item, issue.Message)
	}
	os.Exit(1)
}

func runEvaluation(model *models.FinancialModel) {
	registry := metrics.DefaultRegistry()
	out := struct {
		DealID          string                         `json:"deal_id"`
		RegistryVersion string                         `json:"registry_version"`
		Metrics         map[string]map[string]*float64 `json:"metrics"`
	}{
		DealID:          model.DealID,
		RegistryVersion: registry.Version,
		Metrics:         make(map[string]map[string]*float64, len(model.Periods)),
	}

	for _, p := range model.Periods {
		values, err := metrics.Evaluate(registry.Metrics, metrics.BaseValues(p.Income, p.Balance, p.CashFlow))
		if err != nil {
			fmt.Printf("Error evaluating metrics: %v\n", err)
			os.Exit(1)
		}
		out.Metrics[p.PeriodEnd.Format("2006-01-02")] = values
	}
	printJSON(out)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
