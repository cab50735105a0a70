package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/invariant/internal/pipeline"
	"github.com/ppiankov/invariant/internal/report"
	"github.com/ppiankov/invariant/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	listFile     string
	batchTimeout time.Duration
	batchStamp   bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [facts...]",
	Short: "Verify many fact documents in parallel",
	Long: `Batch verifies multiple fact documents against one rulespec:
- Read fact document paths from arguments or a list file (one per line)
- Verify documents in parallel with a configurable worker count
- Write a program, trace and JSON report per document

Exit status is 2 when any document fails an invariant.

Example:
  invariant batch runs/*.yaml
  invariant batch --list envelopes.txt --concurrency 8 --output-dir ./invariant-reports
  invariant batch --rules rules.yaml a.json b.json --stamp`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addRulesFlags(batchCmd)
	batchCmd.Flags().StringVar(&listFile, "list", "", "file listing fact documents, one per line")

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent documents")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./invariant-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchStamp, "stamp", false, "stamp documents whose invariants all hold")

	addEvalFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if listFile == "" && len(args) == 0 {
		return fmt.Errorf("no fact documents given (pass paths or --list)")
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	rules := resolveRules(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Invariant Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Rulespec:     %s\n", rules)
	if listFile != "" {
		fmt.Fprintf(os.Stderr, "  Input file:   %s\n", listFile)
	}
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	processor := worker.NewBatchProcessor(p.ForBatch(rules, outputDir, batchStamp), concurrency)

	paths := args
	if listFile != "" {
		fmt.Fprintf(os.Stderr, "⚙️  Reading paths from file...\n")
		listed, err := worker.ReadPathsFromFile(listFile)
		if err != nil {
			return fmt.Errorf("process file: %w", err)
		}
		paths = append(paths, listed...)
	}

	fmt.Fprintf(os.Stderr, "✓ Loaded %d documents\n", len(paths))
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "⚙️  Verifying with %d workers...\n", concurrency)
	fmt.Fprintf(os.Stderr, "\n")

	results := processor.ProcessPaths(ctx, paths)

	// Process results
	passedCount := 0
	failedCount := 0
	errorCount := 0
	renderer := report.NewRenderer()

	for _, result := range results {
		if result.Error != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		jsonPath := filepath.Join(outputDir, pipeline.OutputName(result.Path)+".json")
		if err := renderer.RenderJSON(result.Report, jsonPath); err != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Path, err)
			continue
		}

		r := result.Report.Result
		if result.Passed() {
			passedCount++
			fmt.Fprintf(os.Stderr, "✓ %s (%d/%d passed)\n", result.Path, r.PassedCount, r.Total())
		} else {
			failedCount++
			fmt.Fprintf(os.Stderr, "✗ %s (%d/%d passed, %d failed)\n", result.Path, r.PassedCount, r.Total(), r.FailedCount)
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d documents\n", len(results))
	fmt.Fprintf(os.Stderr, "  Passed:    %d\n", passedCount)
	fmt.Fprintf(os.Stderr, "  Failed:    %d\n", failedCount)
	fmt.Fprintf(os.Stderr, "  Errors:    %d\n", errorCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	switch {
	case failedCount > 0:
		return &ExitError{Code: 2, Err: fmt.Errorf("%d of %d document(s) failed invariants", failedCount, len(results))}
	case errorCount > 0:
		return fmt.Errorf("%d of %d document(s) could not be verified", errorCount, len(results))
	}
	return nil
}
