package eval

import (
	"fmt"
	"strings"

	"github.com/ppiankov/invariant/internal/model"
)

// Outcome is the result of one check
type Outcome struct {
	Passed bool
	Reason string
}

func pass(format string, args ...any) Outcome {
	return Outcome{Passed: true, Reason: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Passed: false, Reason: fmt.Sprintf(format, args...)}
}

// Check evaluates one {claim, rule, value} triple against facts. Predicates
// and when conditions are both evaluated here.
func (e *Evaluator) Check(chk model.Check, facts *model.FactSet) Outcome {
	values := facts.Values(chk.Claim)
	length, hasLength := facts.Length(chk.Claim)

	switch chk.Rule {
	case model.RuleExists:
		if len(values) > 0 {
			return pass("Value exists")
		}
		return fail("Value does not exist")
	case model.RuleNotExists:
		if len(values) == 0 {
			return pass("Value does not exist as expected")
		}
		return fail("Value exists but should not")
	}

	if !chk.Rule.Known() {
		return fail("Unknown rule '%s'", chk.Rule)
	}
	if chk.Value == nil || chk.Value.IsNull() {
		return fail("Rule '%s' requires a value", chk.Rule)
	}
	expected := *chk.Value

	switch chk.Rule {
	case model.RuleMinLength, model.RuleMaxLength:
		if !hasLength {
			length = len(values)
		}
		return checkLength(chk.Rule, length, expected)
	case model.RuleNotContains:
		if len(values) == 0 {
			return pass("Claim '%s' has no values (not_contains passes vacuously)", chk.Claim)
		}
		if containsValue(values, expected, hasLength) {
			return fail("Contains '%s' but should not", expected.Literal())
		}
		return pass("Does not contain '%s'", expected.Literal())
	case model.RuleNoneOf:
		if len(values) == 0 {
			return pass("Claim '%s' has no values (none_of passes vacuously)", chk.Claim)
		}
		for _, v := range values {
			if member(v, expected) {
				return fail("Value '%s' is in forbidden set", v)
			}
		}
		return pass("Value is not in forbidden set")
	}

	if len(values) == 0 {
		return fail("Claim '%s' has no values", chk.Claim)
	}

	switch chk.Rule {
	case model.RuleEquals:
		return checkEquals(values, expected)
	case model.RuleContains:
		if containsValue(values, expected, hasLength) {
			return pass("Contains '%s'", expected.Literal())
		}
		return fail("Does not contain '%s'", expected.Literal())
	case model.RuleAnyOf:
		for _, v := range values {
			if member(v, expected) {
				return pass("Value '%s' is in allowed set", v)
			}
		}
		return fail("Value is not in allowed set %s", expected.Literal())
	case model.RuleGreaterThan, model.RuleLessThan:
		return checkOrder(chk.Rule, values, expected)
	case model.RuleMatches:
		return e.checkMatches(values, expected)
	}
	return fail("Unknown rule '%s'", chk.Rule)
}

// checkEquals requires exactly one value. A sequence literal is compared
// element-wise against the claim's values in extraction order.
func checkEquals(values []model.Value, expected model.Value) Outcome {
	if expected.Kind() == model.KindSequence {
		want := expected.Elements()
		if len(want) == len(values) {
			same := true
			for i := range want {
				if !want[i].Equal(values[i]) {
					same = false
					break
				}
			}
			if same {
				return pass("Equals '%s'", expected.Literal())
			}
		}
		return fail("Expected '%s', got '%s'", expected.Literal(), model.Sequence(values...).Literal())
	}

	if len(values) > 1 {
		return fail("Multiple values found, expected single value '%s'", expected.Literal())
	}
	if values[0].Equal(expected) {
		return pass("Equals '%s'", expected.Literal())
	}
	return fail("Expected '%s', got '%s'", expected.Literal(), values[0])
}

// containsValue reports whether any value equals expected or holds it as a
// mapping value. Substring search applies only to a claim that resolved to
// a plain string; the elements of a collection claim must match exactly.
func containsValue(values []model.Value, expected model.Value, collection bool) bool {
	for _, v := range values {
		if v.Equal(expected) {
			return true
		}
		switch v.Kind() {
		case model.KindString:
			if collection {
				continue
			}
			s, _ := v.AsString()
			if sub, ok := expected.AsString(); ok && strings.Contains(s, sub) {
				return true
			}
		case model.KindMapping:
			for _, entry := range v.Entries() {
				if entry.Value.Equal(expected) {
					return true
				}
			}
		}
	}
	return false
}

func member(v model.Value, set model.Value) bool {
	for _, item := range set.Elements() {
		if v.Equal(item) {
			return true
		}
	}
	return false
}

func checkOrder(rule model.Rule, values []model.Value, expected model.Value) Outcome {
	bound, _ := expected.AsNumber()
	op := ">"
	if rule == model.RuleLessThan {
		op = "<"
	}

	for _, v := range values {
		n, ok := v.AsNumber()
		if !ok {
			return fail("Value is not a number: '%s'", v)
		}
		holds := n > bound
		if rule == model.RuleLessThan {
			holds = n < bound
		}
		if !holds {
			return fail("%s is not %s %s", v, op, expected)
		}
	}

	if len(values) == 1 {
		return pass("%s %s %s", values[0], op, expected)
	}
	return pass("All %d values %s %s", len(values), op, expected)
}

func checkLength(rule model.Rule, length int, expected model.Value) Outcome {
	bound, ok := expected.AsInt()
	if !ok || bound < 0 {
		return fail("Length bound must be a non-negative integer, got '%s'", expected.Literal())
	}

	if rule == model.RuleMinLength {
		if length >= bound {
			return pass("Length %d >= %d", length, bound)
		}
		return fail("Length %d < %d (minimum)", length, bound)
	}
	if length <= bound {
		return pass("Length %d <= %d", length, bound)
	}
	return fail("Length %d > %d (maximum)", length, bound)
}

func (e *Evaluator) checkMatches(values []model.Value, expected model.Value) Outcome {
	pattern, ok := expected.AsString()
	if !ok {
		return fail("Pattern must be a string, got '%s'", expected.Literal())
	}
	re, err := e.patterns.Compile(pattern)
	if err != nil {
		return fail("Invalid regex: %v", err)
	}

	// Scalars are matched by their rendered form, so 42 matches ^[0-9]+$
	for _, v := range values {
		if v.IsContainer() {
			continue
		}
		if re.MatchString(v.String()) {
			return pass("Matches pattern '%s'", pattern)
		}
	}
	return fail("No value matches pattern '%s'", pattern)
}
