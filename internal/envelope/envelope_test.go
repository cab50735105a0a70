package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/invariant/internal/model"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func testRulespec() *model.Rulespec {
	two := model.Int(2)
	return &model.Rulespec{
		Claims: []model.Claim{{Name: "caps", Selector: "feature.capabilities"}},
		Predicates: []model.Predicate{
			{Claim: "caps", Rule: model.RuleMinLength, Value: &two, Source: model.SourceTaskPrompt},
		},
	}
}

func testFacts() model.Value {
	return model.Mapping(model.Pair("feature", model.Mapping(
		model.Pair("file", model.String("src/x.rs")),
		model.Pair("capabilities", model.Sequence(model.String("parse"), model.String("eval"))),
	)))
}

func newSigner(t *testing.T, b byte) *Signer {
	t.Helper()
	s, err := NewSigner(testKey(b))
	require.NoError(t, err)
	return s
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "verification.key")

	key, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key, again, "existing key is reused")
}

func TestLoadOrCreateKey_RegeneratesWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))

	key, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestNewSigner_RejectsWrongKeySize(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	assert.Error(t, err)
}

func TestMint_Deterministic(t *testing.T) {
	s := newSigner(t, 1)

	a, err := s.Mint(testFacts(), testRulespec())
	require.NoError(t, err)
	b, err := s.Mint(testFacts(), testRulespec())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, TokenPrefix))
	assert.NotContains(t, a, "=", "no base64 padding")
}

func TestMint_IgnoresKeyOrder(t *testing.T) {
	s := newSigner(t, 1)
	reordered := model.Mapping(model.Pair("feature", model.Mapping(
		model.Pair("capabilities", model.Sequence(model.String("parse"), model.String("eval"))),
		model.Pair("file", model.String("src/x.rs")),
	)))

	a, err := s.Mint(testFacts(), testRulespec())
	require.NoError(t, err)
	b, err := s.Mint(reordered, testRulespec())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMint_KeySensitive(t *testing.T) {
	a, err := newSigner(t, 1).Mint(testFacts(), testRulespec())
	require.NoError(t, err)
	b, err := newSigner(t, 2).Mint(testFacts(), testRulespec())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	s := newSigner(t, 1)
	token, err := s.Mint(testFacts(), testRulespec())
	require.NoError(t, err)

	env := &model.Envelope{Facts: testFacts(), Verified: token}
	assert.NoError(t, s.Verify(env, testRulespec()))
}

func TestVerify_Failures(t *testing.T) {
	s := newSigner(t, 1)
	token, err := s.Mint(testFacts(), testRulespec())
	require.NoError(t, err)

	tampered := model.Mapping(model.Pair("feature", model.Mapping(
		model.Pair("file", model.String("src/y.rs")),
		model.Pair("capabilities", model.Sequence(model.String("parse"), model.String("eval"))),
	)))
	otherRules := testRulespec()
	otherRules.Predicates[0].Notes = "changed"

	tests := []struct {
		name  string
		env   *model.Envelope
		rules *model.Rulespec
		want  error
	}{
		{"tampered facts", &model.Envelope{Facts: tampered, Verified: token}, testRulespec(), ErrTokenMismatch},
		{"changed rulespec", &model.Envelope{Facts: testFacts(), Verified: token}, otherRules, ErrTokenMismatch},
		{"fabricated token", &model.Envelope{Facts: testFacts(), Verified: TokenPrefix + strings.Repeat("A", 43)}, testRulespec(), ErrTokenMismatch},
		{"wrong prefix", &model.Envelope{Facts: testFacts(), Verified: "inv2:" + strings.TrimPrefix(token, TokenPrefix)}, testRulespec(), ErrMalformedToken},
		{"not base64", &model.Envelope{Facts: testFacts(), Verified: TokenPrefix + "!!!"}, testRulespec(), ErrMalformedToken},
		{"unstamped", &model.Envelope{Facts: testFacts()}, testRulespec(), ErrUnstamped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Verify(tt.env, tt.rules)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	other := newSigner(t, 2)
	assert.ErrorIs(t, other.Verify(&model.Envelope{Facts: testFacts(), Verified: token}, testRulespec()), ErrTokenMismatch)
}

func TestStore_StampAndVerifyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envelope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n"), 0644))

	env, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, env.Verified)

	s := newSigner(t, 7)
	token, err := Stamp(path, env, testRulespec(), s)
	require.NoError(t, err)
	assert.Equal(t, token, env.Verified)

	reread, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, token, reread.Verified)
	assert.True(t, reread.Facts.Equal(env.Facts))
	assert.NoError(t, s.Verify(reread, testRulespec()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "facts:"), "facts come first:\n%s", data)
}

func TestWrite_RejectsEmptyFacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envelope.yaml")
	err := Write(path, &model.Envelope{Facts: model.Mapping()})
	assert.ErrorIs(t, err, ErrEmptyFacts)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_StampKeepsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feature": {"file": "src/x.rs", "capabilities": ["parse", "eval"]}}`), 0600))

	env, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, model.FormatJSON, env.Format)

	s := newSigner(t, 7)
	token, err := Stamp(path, env, testRulespec(), s)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded), "stamped file stays JSON:\n%s", data)
	assert.Equal(t, token, decoded["verified"])
	assert.Contains(t, decoded, "facts")

	reread, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, model.FormatJSON, reread.Format)
	assert.NoError(t, s.Verify(reread, testRulespec()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "file mode is preserved")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRead_YAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{feature: {file: src/x.rs}}\n"), 0644))

	env, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, model.FormatYAML, env.Format, "flow-style YAML is not JSON")
}
