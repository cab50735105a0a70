package model

import (
	"sort"
	"strings"
)

// LengthSuffix is appended to a claim name to address its synthesized length fact
const LengthSuffix = ".__length"

// LengthClaim returns the reserved claim name holding the length of claim
func LengthClaim(claim string) string {
	return claim + LengthSuffix
}

// Fact is a single ground fact extracted from a fact document
type Fact struct {
	Claim string `json:"claim"`
	Value Value  `json:"value"`
}

// IsLength reports whether f is a synthesized length fact
func (f Fact) IsLength() bool {
	return strings.HasSuffix(f.Claim, LengthSuffix)
}

// FactSet is a de-duplicated collection of facts in insertion order
type FactSet struct {
	facts   []Fact
	seen    map[string]struct{}
	byClaim map[string][]Value
}

// NewFactSet creates an empty fact set
func NewFactSet() *FactSet {
	return &FactSet{
		seen:    make(map[string]struct{}),
		byClaim: make(map[string][]Value),
	}
}

// Add inserts a fact unless an identical one is present. Null values are never stored.
func (s *FactSet) Add(claim string, v Value) bool {
	if v.IsNull() {
		return false
	}
	k := claim + "\x00" + v.key()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.facts = append(s.facts, Fact{Claim: claim, Value: v})
	s.byClaim[claim] = append(s.byClaim[claim], v)
	return true
}

// SetLength records the length fact of claim
func (s *FactSet) SetLength(claim string, n int) {
	lc := LengthClaim(claim)
	if old, ok := s.byClaim[lc]; ok {
		delete(s.seen, lc+"\x00"+old[0].key())
		delete(s.byClaim, lc)
		for i, f := range s.facts {
			if f.Claim == lc {
				s.facts = append(s.facts[:i], s.facts[i+1:]...)
				break
			}
		}
	}
	s.Add(lc, Int(n))
}

// Values returns the value facts of claim in extraction order
func (s *FactSet) Values(claim string) []Value {
	return s.byClaim[claim]
}

// Length returns the length fact of claim
func (s *FactSet) Length(claim string) (int, bool) {
	vs := s.byClaim[LengthClaim(claim)]
	if len(vs) == 0 {
		return 0, false
	}
	n, ok := vs[0].AsInt()
	return n, ok
}

// Has reports whether claim has any fact, value or length
func (s *FactSet) Has(claim string) bool {
	if len(s.byClaim[claim]) > 0 {
		return true
	}
	_, ok := s.Length(claim)
	return ok
}

// Len returns the number of facts, length facts included
func (s *FactSet) Len() int {
	return len(s.facts)
}

// All returns the facts in insertion order
func (s *FactSet) All() []Fact {
	out := make([]Fact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Sorted returns the facts ordered by claim then rendered value
func (s *FactSet) Sorted() []Fact {
	out := s.All()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Claim != out[j].Claim {
			return out[i].Claim < out[j].Claim
		}
		return out[i].Value.key() < out[j].Value.key()
	})
	return out
}
