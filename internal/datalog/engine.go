package datalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Solution holds the derived verdict relations of a solved program
type Solution struct {
	Passed map[int]bool
	Failed map[int]bool
}

// IDs returns every predicate ID with a verdict, ascending
func (s *Solution) IDs() []int {
	ids := make([]int, 0, len(s.Passed)+len(s.Failed))
	for id := range s.Passed {
		ids = append(ids, id)
	}
	for id := range s.Failed {
		if !s.Passed[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Solve evaluates a lowered program to its fixed point and reads back the
// predicate_pass and predicate_fail relations
func Solve(ctx context.Context, program string) (*Solution, error) {
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze program: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("evaluate program: %w", err)
	}

	sol := &Solution{
		Passed: make(map[int]bool),
		Failed: make(map[int]bool),
	}
	if err := collectIDs(store, RelPredicatePass, sol.Passed); err != nil {
		return nil, err
	}
	if err := collectIDs(store, RelPredicateFail, sol.Failed); err != nil {
		return nil, err
	}

	for id := range sol.Passed {
		if sol.Failed[id] {
			return nil, fmt.Errorf("predicate %d derived both pass and fail", id)
		}
	}
	return sol, nil
}

func collectIDs(store factstore.FactStore, relation string, into map[int]bool) error {
	query := ast.NewQuery(ast.PredicateSym{Symbol: relation, Arity: 1})
	return store.GetFacts(query, func(a ast.Atom) error {
		c, ok := a.Args[0].(ast.Constant)
		if !ok || c.Type != ast.NumberType {
			return fmt.Errorf("%s: expected numeric ID, got %v", relation, a.Args[0])
		}
		into[int(c.NumValue)] = true
		return nil
	})
}
