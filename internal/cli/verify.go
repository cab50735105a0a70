package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/pipeline"
)

var (
	rulesPath string
	workDir   string
	factsPath string
	outJSON   string
	outMD     string
	outDir    string
	timeout   time.Duration
	workers   int
	noStamp   bool
	noCache   bool
	noSchema  bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a fact document against a rulespec",
	Long: `Verify runs the full pipeline over one fact document:
- Validate and compile the rulespec
- Extract facts for every claim
- Evaluate predicates and derive verdicts through Datalog
- Write rulespec.compiled.dl and datalog_evaluation.txt
- Stamp the envelope with a verification token when every invariant holds

Exit status is 2 when any invariant fails.

Example:
  invariant verify --facts envelope.yaml
  invariant verify --rules analysis/rulespec.yaml --facts envelope.yaml --json report.json
  invariant verify --dir ./workspace --facts envelope.yaml --no-stamp`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	addRulesFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&factsPath, "facts", "", "fact document or envelope (YAML or JSON)")
	_ = verifyCmd.MarkFlagRequired("facts")

	// Output flags
	verifyCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path (optional)")
	verifyCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path (optional)")
	verifyCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the compiled program and trace (default: output.dir)")

	addEvalFlags(verifyCmd)
	verifyCmd.Flags().BoolVar(&noStamp, "no-stamp", false, "do not stamp the envelope when every invariant holds")
}

// addRulesFlags registers the flags locating the rulespec
func addRulesFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rulespec path (default: <dir>/rulespec.path)")
	cmd.Flags().StringVar(&workDir, "dir", ".", "working directory holding the rulespec")
	cmd.Flags().BoolVar(&noSchema, "no-schema", false, "skip the rulespec schema check")
}

// addEvalFlags registers the flags tuning evaluation
func addEvalFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "evaluation timeout")
	cmd.Flags().IntVar(&workers, "workers", 0, "predicate evaluation workers (default: evaluation.workers)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the selector and pattern cache")
}

// buildConfig applies command flags over the loaded configuration
func buildConfig() (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		cfg.Evaluation.Workers = workers
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noSchema {
		cfg.Rulespec.SchemaCheck = false
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if noStamp {
		cfg.Token.Stamp = false
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	return cfg, nil
}

// resolveRules returns the rulespec path from --rules or the directory convention
func resolveRules(cfg *model.Config) string {
	if rulesPath != "" {
		return rulesPath
	}
	return pipeline.RulespecPath(workDir, cfg.Rulespec.Path)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	rules := resolveRules(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Rulespec: %s\n", rules)
		fmt.Fprintf(os.Stderr, "Facts: %s\n", factsPath)
		fmt.Fprintf(os.Stderr, "Workers: %d\n", cfg.Evaluation.Workers)
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Evaluating invariants...\n")
	}

	out, err := p.Verify(ctx, pipeline.Request{
		RulesPath: rules,
		FactsPath: factsPath,
		Stamp:     cfg.Token.Stamp,
	})
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if out.Report == nil {
		fmt.Fprintf(os.Stderr, "ℹ️  %s\n", out.Skipped)
		return nil
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Extracted %d facts\n", out.Report.Result.FactCount)
		fmt.Fprintf(os.Stderr, "✓ Wrote program: %s\n", out.ProgramPath)
		fmt.Fprintf(os.Stderr, "✓ Wrote trace: %s\n", out.TracePath)
		if out.Token != "" {
			fmt.Fprintf(os.Stderr, "✓ Stamped %s\n", factsPath)
		}
		fmt.Fprintln(os.Stderr)
	}

	jsonPath, mdPath := outJSON, outMD
	if jsonPath == "" {
		jsonPath = cfg.Output.JSON
	}
	if mdPath == "" {
		mdPath = cfg.Output.Markdown
	}
	if err := p.RenderReport(os.Stdout, out.Report, jsonPath, mdPath, cfg.Output.Verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return failureError(out.Report)
}

// failureError returns an exit status 2 error when any invariant failed
func failureError(rep *model.Report) error {
	if rep.Result.FailedCount == 0 {
		return nil
	}
	return &ExitError{
		Code: 2,
		Err:  fmt.Errorf("%d of %d invariant(s) failed", rep.Result.FailedCount, rep.Result.Total()),
	}
}
