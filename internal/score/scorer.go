// Package score summarizes verification results and raises diagnostic signals.
package score

import (
	"fmt"
	"sort"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/model"
)

// Scorer summarizes execution results
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate summarizes result and generates diagnostic signals
func (s *Scorer) Calculate(compiled *compile.Compiled, facts *model.FactSet, result *model.ExecutionResult) model.Summary {
	summary := model.Summary{
		Passed:   result.PassedCount,
		Failed:   result.FailedCount,
		BySource: make(map[model.Source]model.SourceSummary),
	}

	// 1. Overall status
	switch {
	case result.Total() == 0:
		summary.Status = model.StatusNoRules
	case result.AllPassed():
		summary.Status = model.StatusPassed
	default:
		summary.Status = model.StatusFailed
	}

	// 2. Source breakdown
	for _, v := range result.Verdicts {
		src := summary.BySource[v.Source]
		if v.Passed {
			src.Passed++
		} else {
			src.Failed++
		}
		summary.BySource[v.Source] = src
		if v.Skipped {
			summary.Skipped++
		}
	}

	// 3. Vacuous passes
	if signal, ok := s.detectVacuousPasses(result, facts); ok {
		summary.Signals = append(summary.Signals, signal)
	}

	// 4. Claims that resolved to nothing
	if signal, ok := s.detectMissingClaims(compiled, facts, result); ok {
		summary.Signals = append(summary.Signals, signal)
	}

	// 5. Failures caused by value types rather than values
	if signal, ok := s.detectTypeMismatches(facts, result); ok {
		summary.Signals = append(summary.Signals, signal)
	}

	return summary
}

// detectVacuousPasses reports predicates that passed without checking anything:
// gated by an unmet when condition, or negative rules over empty claims
func (s *Scorer) detectVacuousPasses(result *model.ExecutionResult, facts *model.FactSet) (model.Signal, bool) {
	var gated, empty []int
	for _, v := range result.Verdicts {
		switch {
		case v.Skipped:
			gated = append(gated, v.PredicateID)
		case v.Passed && (v.Rule == model.RuleNotContains || v.Rule == model.RuleNoneOf) && len(facts.Values(v.Claim)) == 0:
			empty = append(empty, v.PredicateID)
		}
	}

	count := len(gated) + len(empty)
	if count == 0 {
		return model.Signal{}, false
	}

	severity := model.SeverityInfo
	if count == result.PassedCount {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalVacuousPass,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d passing predicates passed vacuously", count, result.PassedCount),
		Data: map[string]interface{}{
			"gated":        gated,
			"empty_claims": empty,
			"passed":       result.PassedCount,
		},
	}, true
}

// detectMissingClaims reports declared claims with no facts
func (s *Scorer) detectMissingClaims(compiled *compile.Compiled, facts *model.FactSet, result *model.ExecutionResult) (model.Signal, bool) {
	failedClaims := make(map[string]bool)
	for _, v := range result.Verdicts {
		if !v.Passed {
			failedClaims[v.Claim] = true
		}
	}

	var missing []string
	severity := model.SeverityWarning
	for _, c := range compiled.Claims {
		if facts.Has(c.Name) {
			continue
		}
		missing = append(missing, c.Name)
		if failedClaims[c.Name] {
			severity = model.SeverityCritical
		}
	}

	if len(missing) == 0 {
		return model.Signal{}, false
	}
	sort.Strings(missing)

	return model.Signal{
		Type:        model.SignalMissingClaims,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d claims resolved to no facts", len(missing), len(compiled.Claims)),
		Data: map[string]interface{}{
			"claims": missing,
			"total":  len(compiled.Claims),
		},
	}, true
}

// detectTypeMismatches reports failed ordering checks over non-numbers and
// failed pattern checks over containers, which are never matched
func (s *Scorer) detectTypeMismatches(facts *model.FactSet, result *model.ExecutionResult) (model.Signal, bool) {
	var mismatched []int
	for _, v := range result.Verdicts {
		if v.Passed {
			continue
		}
		var wrong func(model.Value) bool
		switch v.Rule {
		case model.RuleGreaterThan, model.RuleLessThan:
			wrong = func(value model.Value) bool { return value.Kind() != model.KindNumber }
		case model.RuleMatches:
			wrong = model.Value.IsContainer
		default:
			continue
		}
		for _, value := range facts.Values(v.Claim) {
			if wrong(value) {
				mismatched = append(mismatched, v.PredicateID)
				break
			}
		}
	}

	if len(mismatched) == 0 {
		return model.Signal{}, false
	}

	return model.Signal{
		Type:        model.SignalTypeMismatch,
		Severity:    model.SeverityCritical,
		Description: fmt.Sprintf("%d failed predicates compared values of the wrong type", len(mismatched)),
		Data: map[string]interface{}{
			"predicates": mismatched,
		},
	}, true
}
