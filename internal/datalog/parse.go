package datalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Structure summarizes a parsed program
type Structure struct {
	Relations []string       // Declared relations, sorted
	Facts     map[string]int // Ground clause count per relation
	Rules     int            // Clauses with a body
	PredRules []PredRule     // pred_rule rows in source order
}

// PredRule is one pred_rule(ID, Rule, Claim) row
type PredRule struct {
	ID    int
	Rule  string
	Claim string
}

// Parse reads program text back into its structure
func Parse(program string) (*Structure, error) {
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}

	st := &Structure{Facts: make(map[string]int)}
	for _, decl := range unit.Decls {
		sym := decl.DeclaredAtom.Predicate.Symbol
		if sym == "" || sym == "Package" {
			continue
		}
		st.Relations = append(st.Relations, sym)
	}
	sort.Strings(st.Relations)

	for _, clause := range unit.Clauses {
		if len(clause.Premises) > 0 {
			st.Rules++
			continue
		}
		sym := clause.Head.Predicate.Symbol
		st.Facts[sym]++
		if sym != RelPredRule {
			continue
		}

		row, err := predRuleRow(clause.Head)
		if err != nil {
			return nil, err
		}
		st.PredRules = append(st.PredRules, row)
	}
	return st, nil
}

func predRuleRow(a ast.Atom) (PredRule, error) {
	if len(a.Args) != 3 {
		return PredRule{}, fmt.Errorf("%s: expected 3 arguments, got %d", RelPredRule, len(a.Args))
	}
	var consts [3]ast.Constant
	for i, arg := range a.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return PredRule{}, fmt.Errorf("%s: argument %d is not a constant", RelPredRule, i)
		}
		consts[i] = c
	}
	return PredRule{
		ID:    int(consts[0].NumValue),
		Rule:  strings.TrimPrefix(consts[1].Symbol, "/"),
		Claim: consts[2].Symbol,
	}, nil
}
