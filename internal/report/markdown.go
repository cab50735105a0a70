package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/invariant/internal/model"
)

// Markdown renders a full verification report
func Markdown(report *model.Report) string {
	var b strings.Builder
	result := report.Result

	b.WriteString("# Invariant Verification Report\n\n")
	fmt.Fprintf(&b, "**Status:** %s\n\n", report.Summary.Status)
	if report.Rulespec != "" {
		fmt.Fprintf(&b, "**Rulespec:** `%s`\n\n", report.Rulespec)
	}
	if report.Facts != "" {
		fmt.Fprintf(&b, "**Facts:** `%s`\n\n", report.Facts)
	}
	fmt.Fprintf(&b, "**Run:** `%s` at %s\n\n", report.RunID, report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Count |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Predicates | %d |\n", result.Total())
	fmt.Fprintf(&b, "| Passed | %d |\n", result.PassedCount)
	fmt.Fprintf(&b, "| Failed | %d |\n", result.FailedCount)
	fmt.Fprintf(&b, "| Skipped | %d |\n", report.Summary.Skipped)
	fmt.Fprintf(&b, "| Facts | %d |\n\n", result.FactCount)

	if len(report.Summary.BySource) > 0 {
		sources := make([]string, 0, len(report.Summary.BySource))
		for src := range report.Summary.BySource {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)

		b.WriteString("| Source | Passed | Failed |\n")
		b.WriteString("|--------|--------|--------|\n")
		for _, src := range sources {
			s := report.Summary.BySource[model.Source(src)]
			fmt.Fprintf(&b, "| %s | %d | %d |\n", src, s.Passed, s.Failed)
		}
		b.WriteString("\n")
	}

	if len(result.Verdicts) > 0 {
		b.WriteString("## Verdicts\n\n")
		b.WriteString("| # | Status | Source | Rule | Claim | Expected | Reason |\n")
		b.WriteString("|---|--------|--------|------|-------|----------|--------|\n")
		for _, v := range result.Verdicts {
			status := "❌ fail"
			switch {
			case v.Skipped:
				status = "⏭️ skip"
			case v.Passed:
				status = "✅ pass"
			}
			exp := ""
			if v.Expected != nil {
				exp = "`" + cell(v.Expected.Literal()) + "`"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s |\n",
				v.PredicateID, status, v.Source, v.Rule, cell(v.Claim), exp, cell(v.Reason))
		}
		b.WriteString("\n")

		var notes []model.Verdict
		for _, v := range result.Verdicts {
			if v.Notes != "" {
				notes = append(notes, v)
			}
		}
		if len(notes) > 0 {
			b.WriteString("### Notes\n\n")
			for _, v := range notes {
				fmt.Fprintf(&b, "- **#%d** %s\n", v.PredicateID, v.Notes)
			}
			b.WriteString("\n")
		}
	}

	if len(report.Summary.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range report.Summary.Signals {
			fmt.Fprintf(&b, "- **[%s] %s**: %s\n", s.Severity, s.Type, s.Description)
		}
		b.WriteString("\n")
	}

	if report.Stamped {
		b.WriteString("_Envelope stamped with a verification token._\n")
	}

	return b.String()
}

// EnvelopeMarkdown renders the facts recorded in an envelope with keys
// sorted and nested values as indented bullets
func EnvelopeMarkdown(env *model.Envelope) string {
	var b strings.Builder
	b.WriteString("\n### Action Envelope\n\n")

	if env.IsEmpty() {
		b.WriteString("_No facts recorded._\n")
		return b.String()
	}

	entries := append([]model.Entry{}, env.Facts.Entries()...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	for _, e := range entries {
		fmt.Fprintf(&b, "**%s**:\n", e.Key)
		writeValue(&b, e.Value, 0)
		b.WriteString("\n")
	}

	if env.Verified != "" {
		fmt.Fprintf(&b, "_Verified: `%s`_\n", env.Verified)
	}
	return b.String()
}

func writeValue(b *strings.Builder, v model.Value, indent int) {
	prefix := strings.Repeat("  ", indent)
	switch v.Kind() {
	case model.KindNull:
		fmt.Fprintf(b, "%s  - _null_\n", prefix)
	case model.KindSequence:
		for _, item := range v.Elements() {
			if item.IsContainer() {
				writeValue(b, item, indent+1)
				continue
			}
			writeValue(b, item, indent)
		}
	case model.KindMapping:
		for _, e := range v.Entries() {
			switch {
			case e.Value.IsNull():
				fmt.Fprintf(b, "%s  - %s: _null_\n", prefix, e.Key)
			case e.Value.IsContainer():
				fmt.Fprintf(b, "%s  - %s:\n", prefix, e.Key)
				writeValue(b, e.Value, indent+2)
			default:
				fmt.Fprintf(b, "%s  - %s: `%s`\n", prefix, e.Key, e.Value)
			}
		}
	default:
		fmt.Fprintf(b, "%s  - `%s`\n", prefix, v)
	}
}

// cell escapes text for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
