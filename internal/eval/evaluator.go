// Package eval evaluates compiled predicates against extracted facts.
package eval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/datalog"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/worker"
)

// SkippedReason is the reason recorded for predicates whose when condition was not met
const SkippedReason = "Skipped (when condition not met)"

// Evaluator checks predicates and derives verdicts through the Datalog program
type Evaluator struct {
	patterns *compile.Patterns
	workers  int
	logger   *zap.Logger
}

// NewEvaluator creates an evaluator. Workers above 1 check predicates
// concurrently; patterns and logger may be nil.
func NewEvaluator(patterns *compile.Patterns, workers int, logger *zap.Logger) *Evaluator {
	if patterns == nil {
		patterns = compile.NewPatterns(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Evaluator{
		patterns: patterns,
		workers:  workers,
		logger:   logger,
	}
}

// Evaluation is the outcome of evaluating a compiled rulespec
type Evaluation struct {
	Result  *model.ExecutionResult
	Program string // Lowered Datalog source
}

// Evaluate checks every predicate against facts. Either every predicate
// receives a verdict or an error is returned.
func (e *Evaluator) Evaluate(ctx context.Context, compiled *compile.Compiled, facts *model.FactSet) (*Evaluation, error) {
	// 1. Check predicates
	checked, err := e.checkAll(ctx, compiled, facts)
	if err != nil {
		return nil, err
	}

	// 2. Lower to Datalog
	holds := make([]datalog.Holds, len(checked))
	for i, c := range checked {
		holds[i] = c.holds
	}
	program, err := datalog.Lower(compiled, facts, holds)
	if err != nil {
		return nil, fmt.Errorf("lower program: %w", err)
	}

	// 3. Solve
	solution, err := datalog.Solve(ctx, program)
	if err != nil {
		return nil, err
	}

	// 4. Collect verdicts
	result := &model.ExecutionResult{
		Verdicts:  make([]model.Verdict, 0, len(checked)),
		FactCount: facts.Len(),
	}
	for _, c := range checked {
		id := c.verdict.PredicateID
		if solution.Passed[id] == solution.Failed[id] {
			return nil, fmt.Errorf("predicate %d has no verdict", id)
		}
		if solution.Passed[id] != c.verdict.Passed {
			return nil, fmt.Errorf("predicate %d: derived verdict disagrees with check", id)
		}

		result.Verdicts = append(result.Verdicts, c.verdict)
		if c.verdict.Passed {
			result.PassedCount++
		} else {
			result.FailedCount++
		}

		e.logger.Debug("predicate verdict",
			zap.Int("id", id),
			zap.String("claim", c.verdict.Claim),
			zap.String("rule", string(c.verdict.Rule)),
			zap.Bool("passed", c.verdict.Passed),
			zap.Bool("skipped", c.verdict.Skipped),
			zap.String("reason", c.verdict.Reason))
	}
	sort.Slice(result.Verdicts, func(i, j int) bool {
		return result.Verdicts[i].PredicateID < result.Verdicts[j].PredicateID
	})

	e.logger.Info("evaluation complete",
		zap.Int("facts", result.FactCount),
		zap.Int("passed", result.PassedCount),
		zap.Int("failed", result.FailedCount))

	return &Evaluation{Result: result, Program: program}, nil
}

// Predicate evaluates one compiled predicate, applying its when condition
func (e *Evaluator) Predicate(p model.CompiledPredicate, facts *model.FactSet) model.Verdict {
	v, _ := e.predicate(p, facts)
	return v
}

func (e *Evaluator) predicate(p model.CompiledPredicate, facts *model.FactSet) (model.Verdict, datalog.Holds) {
	v := model.Verdict{
		PredicateID: p.ID,
		Claim:       p.Check.Claim,
		Rule:        p.Check.Rule,
		Expected:    p.Check.Value,
		Source:      p.Source,
		Notes:       p.Notes,
	}

	var holds datalog.Holds
	if p.When != nil {
		cond := e.Check(*p.When, facts)
		holds.When = cond.Passed
		if !cond.Passed {
			v.Passed = true
			v.Skipped = true
			v.Reason = SkippedReason
			return v, holds
		}
	}

	out := e.Check(p.Check, facts)
	holds.Check = out.Passed
	v.Passed = out.Passed
	v.Reason = out.Reason
	return v, holds
}

type checked struct {
	verdict model.Verdict
	holds   datalog.Holds
}

func (e *Evaluator) checkAll(ctx context.Context, compiled *compile.Compiled, facts *model.FactSet) ([]checked, error) {
	out := make([]checked, len(compiled.Predicates))

	if e.workers <= 1 || len(compiled.Predicates) <= 1 {
		for i, p := range compiled.Predicates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i].verdict, out[i].holds = e.predicate(p, facts)
		}
		return out, nil
	}

	pool := worker.NewPoolWithContext(ctx, e.workers)
	pool.Start()
	for i, p := range compiled.Predicates {
		if !pool.Submit(&checkJob{index: i, predicate: p, facts: facts, evaluator: e}) {
			break
		}
	}

	results := pool.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) != len(compiled.Predicates) {
		return nil, fmt.Errorf("checked %d of %d predicates", len(results), len(compiled.Predicates))
	}
	for _, r := range results {
		if err := r.GetError(); err != nil {
			return nil, err
		}
		cr := r.(*checkResult)
		out[cr.index] = cr.checked
	}
	return out, nil
}

// checkJob evaluates one predicate on the worker pool. The fact set is
// only read during evaluation.
type checkJob struct {
	index     int
	predicate model.CompiledPredicate
	facts     *model.FactSet
	evaluator *Evaluator
}

func (j *checkJob) Execute(ctx context.Context) worker.Result {
	if err := ctx.Err(); err != nil {
		return &checkResult{index: j.index, err: err}
	}
	v, h := j.evaluator.predicate(j.predicate, j.facts)
	return &checkResult{index: j.index, checked: checked{verdict: v, holds: h}}
}

type checkResult struct {
	index   int
	checked checked
	err     error
}

func (r *checkResult) GetError() error {
	return r.err
}
