// Package report renders verification results as text traces, JSON and Markdown.
package report

import (
	"fmt"
	"strings"

	"github.com/ppiankov/invariant/internal/model"
)

const ruleWidth = 60

// Trace renders the evaluation trace written to datalog_evaluation.txt.
// Output depends only on the result.
func Trace(result *model.ExecutionResult) string {
	var b strings.Builder
	rule := strings.Repeat("─", ruleWidth)

	b.WriteString("\n")
	b.WriteString(rule + "\n")
	b.WriteString("🔬 DATALOG INVARIANT VERIFICATION\n")
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Facts extracted: %d\n\n", result.FactCount)

	for _, v := range result.Verdicts {
		status := "❌"
		if v.Passed {
			status = "✅"
		}
		fmt.Fprintf(&b, "%s [%s] %s %s%s\n", status, v.Source, v.Rule, v.Claim, expected(v))
		fmt.Fprintf(&b, "   %s\n", v.Reason)
		if v.Notes != "" {
			fmt.Fprintf(&b, "   📝 %s\n", v.Notes)
		}
		b.WriteString("\n")
	}

	b.WriteString(rule + "\n")
	if result.AllPassed() {
		fmt.Fprintf(&b, "✅ All %d invariant(s) satisfied\n", result.PassedCount)
	} else {
		fmt.Fprintf(&b, "⚠️  %d/%d invariant(s) satisfied, %d failed\n",
			result.PassedCount, result.Total(), result.FailedCount)
	}
	b.WriteString(rule + "\n")

	return b.String()
}

// SummaryLine renders the one-line outcome of a run
func SummaryLine(result *model.ExecutionResult) string {
	line := fmt.Sprintf("Invariant verification: %d/%d passed", result.PassedCount, result.Total())
	if result.FailedCount > 0 {
		line += fmt.Sprintf(", %d failed", result.FailedCount)
	}
	return line
}

func expected(v model.Verdict) string {
	if v.Expected == nil {
		return ""
	}
	return " '" + v.Expected.Literal() + "'"
}
