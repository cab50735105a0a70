// Package datalog lowers compiled rulespecs and extracted facts into a
// Mangle program and solves it for predicate verdicts.
package datalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/model"
)

// Relation names used by lowered programs
const (
	RelClaimValue     = "claim_value"
	RelClaimLength    = "claim_length"
	RelPredRule       = "pred_rule"
	RelPredExpects    = "pred_expects"
	RelPredGuard      = "pred_guard"
	RelPredGuardValue = "pred_guard_value"
	RelCheckHolds     = "check_holds"
	RelWhenHolds      = "when_holds"
	RelGated          = "gated"
	RelPredicatePass  = "predicate_pass"
	RelPredicateFail  = "predicate_fail"
)

var declarations = []string{
	"Decl claim_value(Claim, Value).",
	"Decl claim_length(Claim, Length).",
	"Decl pred_rule(ID, Rule, Claim).",
	"Decl pred_expects(ID, Value).",
	"Decl pred_guard(ID, Claim, Rule).",
	"Decl pred_guard_value(ID, Value).",
	"Decl check_holds(ID).",
	"Decl when_holds(ID).",
	"Decl gated(ID).",
	"Decl predicate_pass(ID).",
	"Decl predicate_fail(ID).",
}

var verdictRules = []string{
	"gated(ID) :- pred_guard(ID, _, _), !when_holds(ID).",
	"predicate_pass(ID) :- gated(ID).",
	"predicate_pass(ID) :- pred_rule(ID, _, _), check_holds(ID).",
	"predicate_fail(ID) :- pred_rule(ID, _, _), !predicate_pass(ID).",
}

// Holds records which checks held for one predicate
type Holds struct {
	Check bool // The predicate's own rule held
	When  bool // The when condition held (ignored without a condition)
}

// Lower renders compiled predicates, extracted facts and check outcomes as
// Mangle source. holds is indexed like compiled.Predicates.
func Lower(compiled *compile.Compiled, facts *model.FactSet, holds []Holds) (string, error) {
	if len(holds) != len(compiled.Predicates) {
		return "", fmt.Errorf("have %d outcomes for %d predicates", len(holds), len(compiled.Predicates))
	}

	var b strings.Builder
	b.WriteString("# Invariant rulespec lowered to Datalog\n")
	fmt.Fprintf(&b, "# claims: %d, predicates: %d, facts: %d\n\n",
		len(compiled.Claims), len(compiled.Predicates), facts.Len())

	for _, d := range declarations {
		b.WriteString(d)
		b.WriteByte('\n')
	}

	b.WriteString("\n# Claims\n")
	for _, c := range compiled.Claims {
		fmt.Fprintf(&b, "# %s := %s\n", c.Name, comment(c.Selector.String()))
	}

	b.WriteString("\n# Facts\n")
	for _, f := range facts.Sorted() {
		if f.IsLength() {
			n, _ := f.Value.AsInt()
			claim := strings.TrimSuffix(f.Claim, model.LengthSuffix)
			fmt.Fprintf(&b, "%s(%s, %d).\n", RelClaimLength, Quote(claim), n)
			continue
		}
		fmt.Fprintf(&b, "%s(%s, %s).\n", RelClaimValue, Quote(f.Claim), Term(f.Value))
	}

	for i, p := range compiled.Predicates {
		desc := Describe(p)
		if p.Notes != "" {
			desc += "  -- " + p.Notes
		}
		fmt.Fprintf(&b, "\n# pred[%d]: %s\n", p.ID, comment(desc))
		fmt.Fprintf(&b, "%s(%d, %s, %s).\n", RelPredRule, p.ID, ruleName(p.Check.Rule), Quote(p.Check.Claim))
		if p.Check.Value != nil {
			fmt.Fprintf(&b, "%s(%d, %s).\n", RelPredExpects, p.ID, Term(*p.Check.Value))
		}
		if p.When != nil {
			fmt.Fprintf(&b, "%s(%d, %s, %s).\n", RelPredGuard, p.ID, Quote(p.When.Claim), ruleName(p.When.Rule))
			if p.When.Value != nil {
				fmt.Fprintf(&b, "%s(%d, %s).\n", RelPredGuardValue, p.ID, Term(*p.When.Value))
			}
			if holds[i].When {
				fmt.Fprintf(&b, "%s(%d).\n", RelWhenHolds, p.ID)
			}
		}
		if holds[i].Check {
			fmt.Fprintf(&b, "%s(%d).\n", RelCheckHolds, p.ID)
		}
	}

	b.WriteString("\n# Verdicts\n")
	for _, r := range verdictRules {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Describe renders a predicate as a one-line summary
func Describe(p model.CompiledPredicate) string {
	s := describeCheck(p.Check)
	if p.When != nil {
		s += " when " + describeCheck(*p.When)
	}
	return s
}

func describeCheck(c model.Check) string {
	s := string(c.Rule) + " " + c.Claim
	if c.Value != nil {
		s += " '" + c.Value.Literal() + "'"
	}
	return s
}

func ruleName(r model.Rule) string {
	return "/" + string(r)
}

// Quote renders s as a Mangle string constant. Control characters other
// than newline and tab become spaces.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Term renders a value as a Mangle constant: non-negative integers as numbers,
// booleans as names, everything else as its string rendering.
func Term(v model.Value) string {
	switch v.Kind() {
	case model.KindNumber:
		n, _ := v.AsNumber()
		if n == math.Trunc(n) && n >= 0 && n < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return Quote(v.String())
	case model.KindBool:
		return "/" + v.String()
	case model.KindSequence:
		return Quote(v.Literal())
	default:
		return Quote(v.String())
	}
}

func comment(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
