package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/invariant/internal/pipeline"
)

var programOut string

// compileCmd represents the compile command
var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Validate a rulespec and print its Datalog program skeleton",
	Long: `Compile validates a rulespec without evaluating it. Claim names,
selectors, claim references, rule values and when conditions are checked
in that order and the first violation is reported.

On success the program skeleton (declarations, predicate rows and verdict
rules, without facts) is printed or written to --out.

Example:
  invariant compile --rules analysis/rulespec.yaml
  invariant compile --dir ./workspace --out rulespec.dl`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	addRulesFlags(compileCmd)
	compileCmd.Flags().StringVar(&programOut, "out", "", "write the program skeleton to a file instead of stdout")
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	rules := resolveRules(cfg)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	out, err := p.CompileRules(rules)
	if err != nil {
		return fmt.Errorf("compile %s: %w", rules, err)
	}

	fmt.Fprintf(os.Stderr, "✓ %s: %d claims, %d predicates\n", rules, len(out.Compiled.Claims), len(out.Compiled.Predicates))

	if programOut == "" {
		fmt.Print(out.Program)
		return nil
	}
	if err := os.WriteFile(programOut, []byte(out.Program), 0644); err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote program: %s\n", programOut)
	return nil
}
