// Package selector resolves dot/index/wildcard path expressions against
// fact documents.
//
// Grammar:
//
//	selector  = segment { "." segment }
//	segment   = ( ident | quoted ) { "[" subscript "]" }
//	subscript = integer | "*" | quoted
//
// Bare identifiers start with a letter or underscore. Keys that start with
// a digit or hold other characters are quoted: feature."2fa" or
// feature["reply to"].
package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ppiankov/invariant/internal/cache"
	"github.com/ppiankov/invariant/internal/model"
)

type selectorAST struct {
	Segments []*segmentAST `parser:"@@ ( '.' @@ )*"`
}

type segmentAST struct {
	Name       string          `parser:"( @Ident | @String )"`
	Subscripts []*subscriptAST `parser:"( '[' @@ ']' )*"`
}

type subscriptAST struct {
	Wildcard bool    `parser:"  @'*'"`
	Index    *int    `parser:"| @Int"`
	Key      *string `parser:"| @String"`
}

var selectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_\-]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[.\[\]*]`},
})

var grammar = participle.MustBuild[selectorAST](
	participle.Lexer(selectorLexer),
	participle.Unquote("String"),
)

type stepKind uint8

const (
	stepField stepKind = iota
	stepIndex
	stepWildcard
)

type step struct {
	kind  stepKind
	field string
	index int
}

// Selector is a parsed path expression
type Selector struct {
	expr     string
	steps    []step
	wildcard bool
}

// Parse compiles a path expression. Empty segments, unbalanced brackets and
// non-integer subscripts are rejected.
func Parse(expr string) (*Selector, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("selector cannot be empty")
	}

	ast, err := grammar.ParseString("", expr)
	if err != nil {
		return nil, err
	}

	sel := &Selector{expr: expr}
	for _, seg := range ast.Segments {
		if seg.Name == "" {
			return nil, fmt.Errorf("selector %q has an empty key", expr)
		}
		sel.steps = append(sel.steps, step{kind: stepField, field: seg.Name})
		for _, sub := range seg.Subscripts {
			switch {
			case sub.Wildcard:
				sel.steps = append(sel.steps, step{kind: stepWildcard})
				sel.wildcard = true
			case sub.Index != nil:
				sel.steps = append(sel.steps, step{kind: stepIndex, index: *sub.Index})
			case sub.Key != nil:
				if *sub.Key == "" {
					return nil, fmt.Errorf("selector %q has an empty key", expr)
				}
				sel.steps = append(sel.steps, step{kind: stepField, field: *sub.Key})
			}
		}
	}
	return sel, nil
}

// String returns the source expression
func (s *Selector) String() string {
	return s.expr
}

// HasWildcard reports whether the selector fans out over a sequence
func (s *Selector) HasWildcard() bool {
	return s.wildcard
}

// Segments renders the parsed steps, one per field or subscript
func (s *Selector) Segments() []string {
	out := make([]string, len(s.steps))
	for i, st := range s.steps {
		switch st.kind {
		case stepField:
			out[i] = st.field
		case stepIndex:
			out[i] = "[" + strconv.Itoa(st.index) + "]"
		case stepWildcard:
			out[i] = "[*]"
		}
	}
	return out
}

// Select returns every value the selector reaches, in document order.
// A missing key, an out-of-range index or a type mismatch yields no match.
func (s *Selector) Select(root model.Value) []model.Value {
	return s.selectFrom(root, 0, nil)
}

func (s *Selector) selectFrom(v model.Value, i int, out []model.Value) []model.Value {
	if i == len(s.steps) {
		return append(out, v)
	}

	st := s.steps[i]
	switch st.kind {
	case stepField:
		if next, ok := v.Get(st.field); ok {
			return s.selectFrom(next, i+1, out)
		}
	case stepIndex:
		if next, ok := v.At(st.index); ok {
			return s.selectFrom(next, i+1, out)
		}
	case stepWildcard:
		for _, item := range v.Elements() {
			out = s.selectFrom(item, i+1, out)
		}
	}
	return out
}

// Parser parses selectors, reusing previously parsed expressions
type Parser struct {
	cache cache.Cache
}

// NewParser creates a parser backed by the given cache (nil disables caching)
func NewParser(c cache.Cache) *Parser {
	if c == nil {
		c = cache.Disabled{}
	}
	return &Parser{cache: c}
}

// Parse compiles expr or returns the cached result
func (p *Parser) Parse(expr string) (*Selector, error) {
	key := cache.Key("selector", expr)
	if v, ok := p.cache.Get(key); ok {
		return v.(*Selector), nil
	}

	sel, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, sel, 0)
	return sel, nil
}
