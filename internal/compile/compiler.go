// Package compile validates rulespecs and turns them into executable form.
package compile

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/ppiankov/invariant/internal/cache"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/selector"
)

// Claim is a named, parsed selector
type Claim struct {
	Name     string
	Selector *selector.Selector
}

// Compiled is a validated rulespec ready for extraction and evaluation
type Compiled struct {
	Claims     []Claim
	Predicates []model.CompiledPredicate
	Source     *model.Rulespec
}

// Claim returns the compiled claim with the given name
func (c *Compiled) Claim(name string) (Claim, bool) {
	for _, cl := range c.Claims {
		if cl.Name == name {
			return cl, true
		}
	}
	return Claim{}, false
}

// Compiler validates rulespecs
type Compiler struct {
	selectors *selector.Parser
	patterns  *Patterns
	logger    *zap.Logger
}

// NewCompiler creates a compiler. The cache is shared by selector and
// pattern parsing and may be nil.
func NewCompiler(c cache.Cache, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{
		selectors: selector.NewParser(c),
		patterns:  NewPatterns(c),
		logger:    logger,
	}
}

// Compile validates a rulespec with an uncached compiler
func Compile(rs *model.Rulespec) (*Compiled, error) {
	return NewCompiler(nil, nil).Compile(rs)
}

// Compile validates rs and returns its compiled form. The first violation
// found is returned as an *Error; checks run in this order: claim names,
// selectors, predicate claim references, predicate rules and values,
// when conditions.
func (c *Compiler) Compile(rs *model.Rulespec) (*Compiled, error) {
	if rs == nil {
		rs = &model.Rulespec{}
	}

	// 1. Claim names
	names := make(map[string]bool, len(rs.Claims))
	for _, cl := range rs.Claims {
		if cl.Name == "" {
			return nil, &Error{Kind: ErrEmptyClaimName, Selector: cl.Selector, Predicate: -1}
		}
		if names[cl.Name] {
			return nil, &Error{Kind: ErrDuplicateClaim, Claim: cl.Name, Predicate: -1}
		}
		names[cl.Name] = true
	}

	// 2. Selectors
	claims := make([]Claim, 0, len(rs.Claims))
	for _, cl := range rs.Claims {
		sel, err := c.selectors.Parse(cl.Selector)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidSelector, Claim: cl.Name, Selector: cl.Selector, Predicate: -1, Err: err}
		}
		claims = append(claims, Claim{Name: cl.Name, Selector: sel})
	}

	// 3. Predicate claim references
	for i, p := range rs.Predicates {
		if !names[p.Claim] {
			return nil, &Error{Kind: ErrUnknownClaim, Claim: p.Claim, Predicate: i, Rule: p.Rule}
		}
	}

	// 4. Predicate rules, values and sources
	for i, p := range rs.Predicates {
		if err := c.checkValue(i, p.Check(), false); err != nil {
			return nil, err
		}
		switch p.Source {
		case "", model.SourceTaskPrompt, model.SourceMemory:
		default:
			return nil, &Error{Kind: ErrUnknownSource, Claim: p.Claim, Predicate: i, Rule: p.Rule, Detail: string(p.Source)}
		}
	}

	// 5. When conditions
	for i, p := range rs.Predicates {
		if p.When != nil && !names[p.When.Claim] {
			return nil, &Error{Kind: ErrUnknownClaim, Claim: p.When.Claim, Predicate: i, Rule: p.When.Rule, When: true}
		}
	}
	for i, p := range rs.Predicates {
		if p.When == nil {
			continue
		}
		if err := c.checkValue(i, *p.When, true); err != nil {
			return nil, err
		}
	}

	compiled := &Compiled{
		Claims:     claims,
		Predicates: make([]model.CompiledPredicate, 0, len(rs.Predicates)),
		Source:     rs,
	}
	for i, p := range rs.Predicates {
		cp := model.CompiledPredicate{
			ID:     i,
			Check:  p.Check(),
			Source: p.Source,
			Notes:  p.Notes,
		}
		if cp.Source == "" {
			cp.Source = model.SourceTaskPrompt
		}
		if !cp.Check.Rule.NeedsValue() {
			cp.Check.Value = nil
		}
		if p.When != nil {
			when := *p.When
			if !when.Rule.NeedsValue() {
				when.Value = nil
			}
			cp.When = &when
		}
		compiled.Predicates = append(compiled.Predicates, cp)
	}

	c.logger.Debug("compiled rulespec",
		zap.Int("claims", len(compiled.Claims)),
		zap.Int("predicates", len(compiled.Predicates)))
	return compiled, nil
}

func (c *Compiler) checkValue(i int, chk model.Check, when bool) error {
	fail := func(kind error, detail string, cause error) error {
		return &Error{Kind: kind, Claim: chk.Claim, Predicate: i, Rule: chk.Rule, When: when, Detail: detail, Err: cause}
	}

	if !chk.Rule.Known() {
		return fail(ErrUnknownRule, "", nil)
	}
	if !chk.Rule.NeedsValue() {
		return nil
	}
	if chk.Value == nil || chk.Value.IsNull() {
		return fail(ErrMissingValue, "", nil)
	}

	v := *chk.Value
	switch chk.Rule {
	case model.RuleAnyOf, model.RuleNoneOf:
		if v.Kind() != model.KindSequence {
			return fail(ErrValueType, "requires an array value, got "+v.Kind().String(), nil)
		}
	case model.RuleGreaterThan, model.RuleLessThan:
		if v.Kind() != model.KindNumber {
			return fail(ErrValueType, "requires a number value, got "+v.Kind().String(), nil)
		}
	case model.RuleMinLength, model.RuleMaxLength:
		if n, ok := v.AsInt(); !ok || n < 0 {
			return fail(ErrValueType, "requires a non-negative integer value, got "+v.Literal(), nil)
		}
	case model.RuleMatches:
		pattern, ok := v.AsString()
		if !ok {
			return fail(ErrValueType, "requires a string value, got "+v.Kind().String(), nil)
		}
		if _, err := c.patterns.Compile(pattern); err != nil {
			return fail(ErrValueType, "requires a valid regular expression", err)
		}
	}
	return nil
}

// Patterns compiles regular expressions once per distinct source
type Patterns struct {
	cache cache.Cache
}

// NewPatterns creates a pattern compiler backed by c (nil disables caching)
func NewPatterns(c cache.Cache) *Patterns {
	if c == nil {
		c = cache.Disabled{}
	}
	return &Patterns{cache: c}
}

// Compile returns the compiled form of expr
func (p *Patterns) Compile(expr string) (*regexp.Regexp, error) {
	key := cache.Key("pattern", expr)
	if v, ok := p.cache.Get(key); ok {
		return v.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, re, 0)
	return re, nil
}
