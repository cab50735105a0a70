package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Rule is one of the fixed predicate rule kinds
type Rule string

const (
	RuleExists      Rule = "exists"
	RuleNotExists   Rule = "not_exists"
	RuleEquals      Rule = "equals"
	RuleContains    Rule = "contains"
	RuleNotContains Rule = "not_contains"
	RuleAnyOf       Rule = "any_of"
	RuleNoneOf      Rule = "none_of"
	RuleGreaterThan Rule = "greater_than"
	RuleLessThan    Rule = "less_than"
	RuleMinLength   Rule = "min_length"
	RuleMaxLength   Rule = "max_length"
	RuleMatches     Rule = "matches"
)

// Rules lists every rule kind in declaration order
var Rules = []Rule{
	RuleExists, RuleNotExists, RuleEquals, RuleContains, RuleNotContains, RuleAnyOf,
	RuleNoneOf, RuleGreaterThan, RuleLessThan, RuleMinLength, RuleMaxLength, RuleMatches,
}

// Known reports whether r is a recognized rule kind
func (r Rule) Known() bool {
	for _, k := range Rules {
		if r == k {
			return true
		}
	}
	return false
}

// NeedsValue reports whether the rule requires an expected value
func (r Rule) NeedsValue() bool {
	return r != RuleExists && r != RuleNotExists
}

// Source records where an invariant came from
type Source string

const (
	SourceTaskPrompt Source = "task_prompt" // Derived from the task request
	SourceMemory     Source = "memory"      // Derived from workspace memory
)

// Claim names a selector into the fact document
type Claim struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
}

// Check is the {claim, rule, value} triple shared by predicates and conditions
type Check struct {
	Claim string `yaml:"claim" json:"claim"`
	Rule  Rule   `yaml:"rule" json:"rule"`
	Value *Value `yaml:"value,omitempty" json:"value,omitempty"`
}

// Condition gates a predicate: the predicate is only evaluated when it holds
type Condition = Check

// Predicate is a rule check over a claim's resolved values
type Predicate struct {
	Claim  string     `yaml:"claim" json:"claim"`
	Rule   Rule       `yaml:"rule" json:"rule"`
	Value  *Value     `yaml:"value,omitempty" json:"value,omitempty"`
	Source Source     `yaml:"source" json:"source"`
	Notes  string     `yaml:"notes,omitempty" json:"notes,omitempty"`
	When   *Condition `yaml:"when,omitempty" json:"when,omitempty"`
}

// Check returns the predicate's own trigger form
func (p Predicate) Check() Check {
	return Check{Claim: p.Claim, Rule: p.Rule, Value: p.Value}
}

// Rulespec is a machine-readable set of invariants
type Rulespec struct {
	Claims     []Claim     `yaml:"claims,omitempty" json:"claims,omitempty"`
	Predicates []Predicate `yaml:"predicates,omitempty" json:"predicates,omitempty"`
}

// DecodeRulespec reads a rulespec from YAML or JSON, rejecting unknown fields
func DecodeRulespec(data []byte) (*Rulespec, error) {
	var rs Rulespec
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rs); err == nil {
			return &rs, nil
		}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rulespec: %w", err)
	}
	return &rs, nil
}

// CompiledPredicate is the validated form of a predicate used at evaluation time
type CompiledPredicate struct {
	ID     int    `json:"id"`
	Check  Check  `json:"check"`
	Source Source `json:"source"`
	Notes  string `json:"notes,omitempty"`
	When   *Check `json:"when,omitempty"`
}
