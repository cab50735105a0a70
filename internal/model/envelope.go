package model

import "fmt"

// Envelope carries the facts recorded about completed work.
// Verified holds the token minted when every invariant passed.
type Envelope struct {
	Facts    Value  `yaml:"facts" json:"facts"`
	Verified string `yaml:"verified,omitempty" json:"verified,omitempty"`
	Format   Format `yaml:"-" json:"-"` // Serialization the envelope is written back in
}

// IsEmpty reports whether the envelope records no facts
func (e *Envelope) IsEmpty() bool {
	return e.Facts.Len() == 0
}

// Root returns the document root that selectors resolve against
func (e *Envelope) Root() Value {
	return e.Facts
}

// AddFact sets a top-level fact, keeping existing key order
func (e *Envelope) AddFact(key string, v Value) {
	entries := append([]Entry{}, e.Facts.Entries()...)
	entries = append(entries, Pair(key, v))
	e.Facts = Mapping(entries...)
}

// EnvelopeFromDocument interprets a decoded document. A mapping whose keys
// are only "facts" and "verified" is an envelope; any other document is
// taken as the fact root itself.
func EnvelopeFromDocument(doc Value) (*Envelope, error) {
	if doc.IsNull() {
		return &Envelope{Facts: Mapping()}, nil
	}
	if doc.Kind() != KindMapping {
		return &Envelope{Facts: doc}, nil
	}

	facts, hasFacts := doc.Get("facts")
	verified, hasVerified := doc.Get("verified")
	if !hasFacts || doc.Len() != countTrue(hasFacts, hasVerified) {
		return &Envelope{Facts: doc}, nil
	}

	env := &Envelope{Facts: facts}
	if facts.IsNull() {
		env.Facts = Mapping()
	}
	if hasVerified && !verified.IsNull() {
		token, ok := verified.AsString()
		if !ok {
			return nil, fmt.Errorf("envelope field verified must be a string, got %s", verified.Kind())
		}
		env.Verified = token
	}
	return env, nil
}

// Document returns the envelope as a mapping with facts first
func (e *Envelope) Document() Value {
	entries := []Entry{Pair("facts", e.Facts)}
	if e.Verified != "" {
		entries = append(entries, Pair("verified", String(e.Verified)))
	}
	return Mapping(entries...)
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
