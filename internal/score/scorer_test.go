package score

import (
	"testing"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/selector"
)

func compiledWith(t *testing.T, names ...string) *compile.Compiled {
	t.Helper()
	c := &compile.Compiled{}
	for _, n := range names {
		sel, err := selector.Parse("doc." + n)
		if err != nil {
			t.Fatal(err)
		}
		c.Claims = append(c.Claims, compile.Claim{Name: n, Selector: sel})
	}
	return c
}

func findSignal(summary model.Summary, typ model.SignalType) *model.Signal {
	for i := range summary.Signals {
		if summary.Signals[i].Type == typ {
			return &summary.Signals[i]
		}
	}
	return nil
}

func TestScorer_Calculate_AllPassed(t *testing.T) {
	scorer := NewScorer()

	facts := model.NewFactSet()
	facts.Add("caps", model.String("parse"))

	result := &model.ExecutionResult{
		Verdicts: []model.Verdict{
			{PredicateID: 0, Claim: "caps", Rule: model.RuleExists, Passed: true, Source: model.SourceTaskPrompt},
			{PredicateID: 1, Claim: "caps", Rule: model.RuleContains, Passed: true, Source: model.SourceMemory},
		},
		PassedCount: 2,
	}

	summary := scorer.Calculate(compiledWith(t, "caps"), facts, result)

	if summary.Status != model.StatusPassed {
		t.Errorf("Expected status passed, got %s", summary.Status)
	}
	if summary.BySource[model.SourceTaskPrompt].Passed != 1 || summary.BySource[model.SourceMemory].Passed != 1 {
		t.Errorf("Unexpected source breakdown: %+v", summary.BySource)
	}
	if len(summary.Signals) != 0 {
		t.Errorf("Expected no signals, got %+v", summary.Signals)
	}
}

func TestScorer_Calculate_NoRules(t *testing.T) {
	summary := NewScorer().Calculate(compiledWith(t), model.NewFactSet(), &model.ExecutionResult{})

	if summary.Status != model.StatusNoRules {
		t.Errorf("Expected status no_rules, got %s", summary.Status)
	}
	if summary.Passed != 0 || summary.Failed != 0 {
		t.Errorf("Expected zero counts, got %d/%d", summary.Passed, summary.Failed)
	}
}

func TestScorer_Calculate_VacuousPasses(t *testing.T) {
	result := &model.ExecutionResult{
		Verdicts: []model.Verdict{
			{PredicateID: 0, Claim: "reply", Rule: model.RuleExists, Passed: true, Skipped: true, Source: model.SourceTaskPrompt},
			{PredicateID: 1, Claim: "tags", Rule: model.RuleNoneOf, Passed: true, Source: model.SourceTaskPrompt},
		},
		PassedCount: 2,
	}

	summary := NewScorer().Calculate(compiledWith(t, "reply", "tags"), model.NewFactSet(), result)

	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", summary.Skipped)
	}

	signal := findSignal(summary, model.SignalVacuousPass)
	if signal == nil {
		t.Fatal("Expected vacuous pass signal")
	}
	if signal.Severity != model.SeverityWarning {
		t.Errorf("Expected warning when every pass is vacuous, got %s", signal.Severity)
	}
	if signal.Description != "2 of 2 passing predicates passed vacuously" {
		t.Errorf("Unexpected description: %s", signal.Description)
	}
}

func TestScorer_Calculate_MissingClaims(t *testing.T) {
	facts := model.NewFactSet()
	facts.Add("present", model.Int(1))

	result := &model.ExecutionResult{
		Verdicts: []model.Verdict{
			{PredicateID: 0, Claim: "absent", Rule: model.RuleExists, Passed: false, Source: model.SourceTaskPrompt},
		},
		FailedCount: 1,
	}

	summary := NewScorer().Calculate(compiledWith(t, "present", "absent", "unused"), facts, result)

	if summary.Status != model.StatusFailed {
		t.Errorf("Expected status failed, got %s", summary.Status)
	}

	signal := findSignal(summary, model.SignalMissingClaims)
	if signal == nil {
		t.Fatal("Expected missing claims signal")
	}
	if signal.Severity != model.SeverityCritical {
		t.Errorf("Expected critical severity when a failed predicate uses a missing claim, got %s", signal.Severity)
	}
	claims := signal.Data["claims"].([]string)
	if len(claims) != 2 || claims[0] != "absent" || claims[1] != "unused" {
		t.Errorf("Unexpected missing claims: %v", claims)
	}
}

func TestScorer_Calculate_TypeMismatch(t *testing.T) {
	facts := model.NewFactSet()
	facts.Add("version", model.String("v2"))
	facts.Add("count", model.Int(1))
	facts.Add("meta", model.Mapping(model.Pair("owner", model.String("ana"))))

	result := &model.ExecutionResult{
		Verdicts: []model.Verdict{
			{PredicateID: 0, Claim: "version", Rule: model.RuleGreaterThan, Passed: false},
			{PredicateID: 1, Claim: "count", Rule: model.RuleGreaterThan, Passed: false},
			{PredicateID: 2, Claim: "meta", Rule: model.RuleMatches, Passed: false},
			{PredicateID: 3, Claim: "count", Rule: model.RuleMatches, Passed: false},
		},
		FailedCount: 4,
	}

	summary := NewScorer().Calculate(compiledWith(t, "version", "count", "meta"), facts, result)

	signal := findSignal(summary, model.SignalTypeMismatch)
	if signal == nil {
		t.Fatal("Expected type mismatch signal")
	}
	ids := signal.Data["predicates"].([]int)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("Expected predicates [0 2], got %v", ids)
	}
}
