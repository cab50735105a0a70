package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/invariant/internal/model"
)

// Renderer writes reports and generated artifacts to disk
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(Markdown(report)))
}

// WriteProgram writes the lowered Datalog program
func (r *Renderer) WriteProgram(program, path string) error {
	return writeFile(path, []byte(program))
}

// WriteTrace writes the evaluation trace
func (r *Renderer) WriteTrace(result *model.ExecutionResult, path string) error {
	return writeFile(path, []byte(Trace(result)))
}

// RenderSummary prints the run outcome and any signals
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", SummaryLine(report.Result))
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Status:   %s\n", report.Summary.Status)
	if report.Summary.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:  %d (when condition not met)\n", report.Summary.Skipped)
	}

	sources := make([]string, 0, len(report.Summary.BySource))
	for src := range report.Summary.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		s := report.Summary.BySource[model.Source(src)]
		fmt.Fprintf(w, "  %-12s %d passed, %d failed\n", src+":", s.Passed, s.Failed)
	}

	for _, s := range report.Summary.Signals {
		icon := "ℹ️ "
		switch s.Severity {
		case model.SeverityWarning:
			icon = "⚠️ "
		case model.SeverityCritical:
			icon = "✗"
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", icon, s.Type, s.Description)
	}

	if report.Stamped {
		fmt.Fprintln(w, "  ✓ Envelope stamped")
	}
	fmt.Fprintln(w)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
