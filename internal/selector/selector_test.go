package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/invariant/internal/cache"
	"github.com/ppiankov/invariant/internal/model"
)

func mustDoc(t *testing.T, src string) model.Value {
	t.Helper()
	doc, err := model.ParseYAML([]byte(src))
	require.NoError(t, err)
	return doc
}

func render(vs []model.Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

const sampleDoc = `
feature:
  file: src/x.rs
  capabilities: [a, b, c]
  owner: null
modules:
  - name: core
    tags: [x, y]
  - name: cli
    tags: [z]
  - name: empty
    tags: []
`

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		expr     string
		segments []string
		wildcard bool
	}{
		{"feature", []string{"feature"}, false},
		{"feature.file", []string{"feature", "file"}, false},
		{"modules[0].name", []string{"modules", "[0]", "name"}, false},
		{"modules[*].tags[*]", []string{"modules", "[*]", "tags", "[*]"}, true},
		{"matrix[1][2]", []string{"matrix", "[1]", "[2]"}, false},
		{"reply-to.id_2", []string{"reply-to", "id_2"}, false},
		{`security."2fa".enabled`, []string{"security", "2fa", "enabled"}, false},
		{`email["reply to"]`, []string{"email", "reply to"}, false},
		{`"top level"[0]`, []string{"top level", "[0]"}, false},
		{`a["say \"hi\""]`, []string{"a", `say "hi"`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sel, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.segments, sel.Segments())
			assert.Equal(t, tt.wildcard, sel.HasWildcard())
			assert.Equal(t, tt.expr, sel.String())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, expr := range []string{
		"",
		"   ",
		"a..b",
		".a",
		"a.",
		"a[0",
		"a]0[",
		"a[]",
		"a[x]",
		"a[-1]",
		"a[1.5]",
		"[0]",
		"a b",
		"a[*",
		"a.2fa",
		`a.""`,
		`a."open`,
		`a[""]`,
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.Error(t, err)
		})
	}
}

func TestSelect(t *testing.T) {
	doc := mustDoc(t, sampleDoc)

	tests := []struct {
		expr string
		want []string
	}{
		{"feature.file", []string{"src/x.rs"}},
		{"feature.capabilities", []string{"[array]"}},
		{"feature.capabilities[1]", []string{"b"}},
		{"feature.capabilities[*]", []string{"a", "b", "c"}},
		{"feature.owner", []string{"null"}},
		{"modules[*].name", []string{"core", "cli", "empty"}},
		{"modules[*].tags[*]", []string{"x", "y", "z"}},
		{"modules[1].tags[0]", []string{"z"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sel, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, render(sel.Select(doc)))
		})
	}
}

func TestSelect_QuotedKeys(t *testing.T) {
	doc := mustDoc(t, "security:\n  2fa: required\n  \"reply to\": [m1, m2]\n")

	tests := []struct {
		expr string
		want []string
	}{
		{`security."2fa"`, []string{"required"}},
		{`security["2fa"]`, []string{"required"}},
		{`security["reply to"][*]`, []string{"m1", "m2"}},
		{`security."reply to"[1]`, []string{"m2"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sel, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, render(sel.Select(doc)))
		})
	}
}

func TestSelect_NoMatchIsNotAnError(t *testing.T) {
	doc := mustDoc(t, sampleDoc)

	for _, expr := range []string{
		"feature.missing",
		"feature.capabilities[3]",
		"feature.capabilities[99]",
		"feature.file.deeper",
		"feature.file[0]",
		"feature[*]",
		"modules[*].missing",
		"nothing.here",
	} {
		t.Run(expr, func(t *testing.T) {
			sel, err := Parse(expr)
			require.NoError(t, err)
			assert.Empty(t, sel.Select(doc))
		})
	}
}

func TestParser_Caches(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	p := NewParser(c)

	first, err := p.Parse("feature.file")
	require.NoError(t, err)
	second, err := p.Parse("feature.file")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())

	_, err = p.Parse("a..b")
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len(), "failed parses are not cached")
}
