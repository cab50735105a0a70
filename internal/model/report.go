package model

import "time"

// Verdict is the pass/fail outcome of one predicate
type Verdict struct {
	PredicateID int    `json:"predicate_id"`
	Claim       string `json:"claim"`
	Rule        Rule   `json:"rule"`
	Expected    *Value `json:"expected,omitempty"`
	Passed      bool   `json:"passed"`
	Skipped     bool   `json:"skipped,omitempty"` // Vacuous pass: the when condition was not met
	Reason      string `json:"reason"`
	Source      Source `json:"source"`
	Notes       string `json:"notes,omitempty"`
}

// ExecutionResult aggregates the verdicts of one evaluation
type ExecutionResult struct {
	Verdicts    []Verdict `json:"verdicts"`
	FactCount   int       `json:"fact_count"`
	PassedCount int       `json:"passed_count"`
	FailedCount int       `json:"failed_count"`
}

// Total returns the number of evaluated predicates
func (r *ExecutionResult) Total() int {
	return r.PassedCount + r.FailedCount
}

// AllPassed reports whether no predicate failed
func (r *ExecutionResult) AllPassed() bool {
	return r.FailedCount == 0
}

// Report is the complete output of a verification run
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Rulespec    string           `json:"rulespec,omitempty"` // Path of the rulespec document
	Facts       string           `json:"facts,omitempty"`    // Path of the fact document
	Result      *ExecutionResult `json:"result"`
	Summary     Summary          `json:"summary"`
	Stamped     bool             `json:"stamped"` // Whether the envelope received a verification token
}

// Summary is a breakdown of an execution result
type Summary struct {
	Status   Status                   `json:"status"`
	Passed   int                      `json:"passed"`
	Failed   int                      `json:"failed"`
	Skipped  int                      `json:"skipped"`
	BySource map[Source]SourceSummary `json:"by_source,omitempty"`
	Signals  []Signal                 `json:"signals,omitempty"`
}

// SourceSummary counts verdicts for one invariant source
type SourceSummary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Status is the overall outcome of a verification run
type Status string

const (
	StatusPassed  Status = "passed"   // Every predicate passed
	StatusFailed  Status = "failed"   // At least one predicate failed
	StatusNoRules Status = "no_rules" // Nothing to evaluate
)

// Signal is a diagnostic observation about a run
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignalType classifies a diagnostic signal
type SignalType string

const (
	SignalVacuousPass   SignalType = "vacuous_pass"   // Predicates skipped by their when condition
	SignalMissingClaims SignalType = "missing_claims" // Claims that resolved to nothing
	SignalTypeMismatch  SignalType = "type_mismatch"  // Verdicts failed on value types
)

// SignalSeverity indicates the importance of a signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
