package extract

import (
	"testing"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/selector"
)

func mustClaim(t *testing.T, name, expr string) compile.Claim {
	t.Helper()
	sel, err := selector.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	return compile.Claim{Name: name, Selector: sel}
}

func mustDoc(t *testing.T, src string) model.Value {
	t.Helper()
	doc, err := model.ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	return doc
}

func TestFactExtractor_ScalarClaim(t *testing.T) {
	root := mustDoc(t, `{feature: {file: src/x.rs}}`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "has_file", "feature.file")}, root)

	values := facts.Values("has_file")
	if len(values) != 1 || values[0].String() != "src/x.rs" {
		t.Fatalf("Expected single value src/x.rs, got %v", values)
	}
	if _, ok := facts.Length("has_file"); ok {
		t.Error("Scalar claim without wildcard must not get a length fact")
	}
}

func TestFactExtractor_SequenceClaim(t *testing.T) {
	root := mustDoc(t, `{feature: {capabilities: [parse, eval, parse]}}`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "caps", "feature.capabilities")}, root)

	if got := len(facts.Values("caps")); got != 2 {
		t.Errorf("Expected 2 distinct element facts, got %d", got)
	}
	if n, ok := facts.Length("caps"); !ok || n != 3 {
		t.Errorf("Expected length 3, got %d (%v)", n, ok)
	}
}

func TestFactExtractor_EmptySequenceHasLength(t *testing.T) {
	root := mustDoc(t, `{feature: {capabilities: []}}`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "caps", "feature.capabilities")}, root)

	if n, ok := facts.Length("caps"); !ok || n != 0 {
		t.Errorf("Expected length 0, got %d (%v)", n, ok)
	}
	if len(facts.Values("caps")) != 0 {
		t.Error("Empty array yields no element facts")
	}
}

func TestFactExtractor_NullIsAbsent(t *testing.T) {
	root := mustDoc(t, `{feature: {owner: null, tags: [null]}}`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{
		mustClaim(t, "owner", "feature.owner"),
		mustClaim(t, "first_tag", "feature.tags[0]"),
	}, root)

	for _, claim := range []string{"owner", "first_tag"} {
		if facts.Has(claim) {
			t.Errorf("Expected no facts for %s", claim)
		}
	}
	if facts.Len() != 0 {
		t.Errorf("Expected empty fact set, got %d facts", facts.Len())
	}
}

func TestFactExtractor_WildcardLengthIsFlattened(t *testing.T) {
	root := mustDoc(t, `
modules:
  - name: core
    deps: [a, b]
  - name: cli
    deps: [c]
  - name: docs
`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{
		mustClaim(t, "names", "modules[*].name"),
		mustClaim(t, "deps", "modules[*].deps"),
	}, root)

	names := facts.Values("names")
	if len(names) != 3 || names[0].String() != "core" || names[2].String() != "docs" {
		t.Errorf("Expected names in document order, got %v", names)
	}
	if n, _ := facts.Length("names"); n != 3 {
		t.Errorf("Expected wildcard scalar length 3, got %d", n)
	}
	if n, _ := facts.Length("deps"); n != 3 {
		t.Errorf("Expected flattened length 3, got %d", n)
	}
}

func TestFactExtractor_MappingClaim(t *testing.T) {
	root := mustDoc(t, `{feature: {meta: {owner: ana, labels: [x, y]}}}`)
	facts := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "meta", "feature.meta")}, root)

	values := facts.Values("meta")
	if len(values) != 1 || values[0].String() != "{object}" {
		t.Fatalf("Expected mapping fact, got %v", values)
	}
	if owner := facts.Values("meta.owner"); len(owner) != 1 || owner[0].String() != "ana" {
		t.Errorf("Expected nested owner fact, got %v", owner)
	}
	if n, ok := facts.Length("meta.labels"); !ok || n != 2 {
		t.Errorf("Expected nested length 2, got %d (%v)", n, ok)
	}
	if n, _ := facts.Length("meta"); n != 2 {
		t.Errorf("Expected mapping length 2, got %d", n)
	}
}

func TestResolve_WrapFallback(t *testing.T) {
	// The document is already the content of "facts"
	root := mustDoc(t, `{feature: {file: src/x.rs}}`)

	plain, wrapped := Resolve(mustClaim(t, "f", "feature.file"), root)
	if wrapped || len(plain) != 1 {
		t.Fatalf("Expected direct resolution, got %v (wrapped=%v)", plain, wrapped)
	}

	prefixed, wrapped := Resolve(mustClaim(t, "f", "facts.feature.file"), root)
	if !wrapped {
		t.Error("Expected second attempt against wrapped root")
	}
	if len(prefixed) != 1 || !prefixed[0].Equal(plain[0]) {
		t.Errorf("Prefixed selector must resolve identically, got %v", prefixed)
	}

	none, _ := Resolve(mustClaim(t, "f", "facts.feature.missing"), root)
	if len(none) != 0 {
		t.Errorf("Expected no match, got %v", none)
	}
}

func TestFactExtractor_PrefixedAndPlainProduceSameFacts(t *testing.T) {
	root := mustDoc(t, `{feature: {capabilities: [a, b]}}`)
	plain := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "caps", "feature.capabilities")}, root)
	prefixed := NewFactExtractor(nil).Extract([]compile.Claim{mustClaim(t, "caps", "facts.feature.capabilities")}, root)

	if plain.Len() != prefixed.Len() {
		t.Fatalf("Expected %d facts, got %d", plain.Len(), prefixed.Len())
	}
	for i, f := range plain.Sorted() {
		g := prefixed.Sorted()[i]
		if f.Claim != g.Claim || !f.Value.Equal(g.Value) {
			t.Errorf("Fact %d differs: %v vs %v", i, f, g)
		}
	}
}
