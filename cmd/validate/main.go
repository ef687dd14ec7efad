// Command validate checks the derived grids of a finished run against their
// sources: grid alignment, delta recomputation, Z-score moments, and the
// composite sum. With -db it also checks the stored ranking.
//
// Usage:
//
//	go run ./cmd/validate -study data/mock/hotspots.yaml -db data/mock/results.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/geotiff"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/sqlite"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	skipped string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	studyFile := flag.String("study", "hotspots.yaml", "study file of the run to validate")
	dbPath := flag.String("db", "", "results database to check the stored ranking (optional)")
	tol := flag.Float64("tolerance", 1e-4, "absolute tolerance for recomputed cell values")
	flag.Parse()

	var studySet bool
	flag.Visit(func(f *flag.Flag) { studySet = studySet || f.Name == "study" })

	os.Exit(run(*studyFile, studySet, *dbPath, *tol))
}

func run(studyFile string, studySet bool, dbPath string, tol float64) int {
	cfg := &config.Config{StudyFile: studyFile, StudyFileSet: studySet}
	study, err := cfg.Study()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load study: %v\n", err)
		return 1
	}
	store := geotiff.NewStore()
	plan, err := pipeline.NewPlan(study, store.Ext())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: build plan: %v\n", err)
		return 1
	}

	fmt.Println("=== Climate Hotspot Run Validation ===")
	fmt.Println()

	v := validator{store: store, plan: plan, tol: tol}
	phases := v.phases()

	if dbPath != "" {
		db, err := sqlite.Open(context.Background(), dbPath, slog.New(slog.DiscardHandler))
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: open results db: %v\n", err)
			return 1
		}
		defer db.Close()
		phases = append(phases, validateStoredRanking(context.Background(), db))
	}

	return report(phases)
}

func report(phases []*phase) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped != "":
			status = "\033[33mSKIP\033[0m (" + p.skipped + ")"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}
