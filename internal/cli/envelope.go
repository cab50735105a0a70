package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/invariant/internal/envelope"
	"github.com/ppiankov/invariant/internal/report"
)

// envelopeCmd groups envelope commands
var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Work with fact envelopes",
}

var envelopeShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Render an envelope as Markdown",
	Long: `Show prints the facts recorded in an envelope as Markdown, keys sorted
and nested values as indented bullets.

Example:
  invariant envelope show envelope.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := envelope.Read(args[0])
		if err != nil {
			return err
		}
		fmt.Print(report.EnvelopeMarkdown(env))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envelopeCmd)
	envelopeCmd.AddCommand(envelopeShowCmd)
}
