package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/invariant/internal/envelope"
	"github.com/ppiankov/invariant/internal/pipeline"
)

var envelopePath string

// tokenCmd groups verification token commands
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect verification tokens",
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an envelope's verification token",
	Long: `Verify recomputes the token for the envelope's facts and the rulespec
with the local verification key and compares it with the stored one.

Exit status is 2 when the token is missing or does not match.

Example:
  invariant token verify --envelope envelope.yaml
  invariant token verify --rules rules.yaml --envelope envelope.json`,
	Args: cobra.NoArgs,
	RunE: runTokenVerify,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)

	addRulesFlags(tokenVerifyCmd)
	tokenVerifyCmd.Flags().StringVar(&envelopePath, "envelope", "", "stamped envelope (YAML or JSON)")
	_ = tokenVerifyCmd.MarkFlagRequired("envelope")
}

func runTokenVerify(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	rules := resolveRules(cfg)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	err = p.VerifyToken(rules, envelopePath)
	switch {
	case err == nil:
		fmt.Printf("✓ %s: token valid for %s\n", envelopePath, rules)
		return nil
	case errors.Is(err, envelope.ErrUnstamped),
		errors.Is(err, envelope.ErrMalformedToken),
		errors.Is(err, envelope.ErrTokenMismatch):
		fmt.Printf("✗ %s: %v\n", envelopePath, err)
		return &ExitError{Code: 2, Err: err}
	default:
		return err
	}
}
