package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/envelope"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/validate"
)

const capsRulespec = `
claims:
  - name: caps
    selector: feature.capabilities
  - name: file
    selector: feature.file
predicates:
  - claim: caps
    rule: min_length
    value: 2
    source: task_prompt
  - claim: file
    rule: matches
    value: '^src/'
    source: memory
    notes: sources live under src
`

type fixture struct {
	dir   string
	rules string
	facts string
	p     *Pipeline
}

func newFixture(t *testing.T, rules, facts string) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		dir:   dir,
		rules: filepath.Join(dir, "analysis", "rulespec.yaml"),
		facts: filepath.Join(dir, "envelope.yaml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(f.rules), 0755))
	if rules != "" {
		require.NoError(t, os.WriteFile(f.rules, []byte(rules), 0644))
	}
	require.NoError(t, os.WriteFile(f.facts, []byte(facts), 0644))

	cfg := model.DefaultConfig()
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Token.KeyPath = filepath.Join(dir, "verification.key")
	cfg.Evaluation.Workers = 2

	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	f.p = p
	return f
}

func (f *fixture) request(stamp bool) Request {
	return Request{RulesPath: f.rules, FactsPath: f.facts, Stamp: stamp}
}

func TestVerify_PassingRunStampsEnvelope(t *testing.T) {
	f := newFixture(t, capsRulespec, "feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n")

	out, err := f.p.Verify(context.Background(), f.request(true))
	require.NoError(t, err)
	require.NotNil(t, out.Report)

	assert.Equal(t, model.StatusPassed, out.Report.Summary.Status)
	assert.Equal(t, 2, out.Report.Result.PassedCount)
	assert.True(t, out.Report.Stamped)
	assert.True(t, strings.HasPrefix(out.Token, envelope.TokenPrefix))
	assert.NotEmpty(t, out.Report.RunID)

	program, err := os.ReadFile(out.ProgramPath)
	require.NoError(t, err)
	assert.Equal(t, out.Program, string(program))
	assert.Equal(t, filepath.Join(f.dir, "out", "rulespec.compiled.dl"), out.ProgramPath)

	trace, err := os.ReadFile(out.TracePath)
	require.NoError(t, err)
	assert.Contains(t, string(trace), "✅ All 2 invariant(s) satisfied")

	env, err := envelope.Read(f.facts)
	require.NoError(t, err)
	assert.Equal(t, out.Token, env.Verified)
	assert.NoError(t, f.p.VerifyToken(f.rules, f.facts))
}

func TestVerify_StampFailureWritesNoOutputs(t *testing.T) {
	f := newFixture(t, capsRulespec, "feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n")

	cfg := model.DefaultConfig()
	cfg.Output.Dir = filepath.Join(f.dir, "out")
	cfg.Token.KeyPath = filepath.Join(f.facts, "verification.key") // parent is a file
	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)

	out, err := p.Verify(context.Background(), f.request(true))
	require.Error(t, err)
	assert.Nil(t, out)

	_, statErr := os.Stat(cfg.Output.Dir)
	assert.True(t, os.IsNotExist(statErr), "program and trace are not written for a failed run")
}

func TestVerify_StampedJSONFactsStayJSON(t *testing.T) {
	f := newFixture(t, capsRulespec, "")
	f.facts = filepath.Join(f.dir, "facts.json")
	require.NoError(t, os.WriteFile(f.facts, []byte(`{"feature": {"file": "src/x.rs", "capabilities": ["parse", "eval"]}}`), 0644))

	out, err := f.p.Verify(context.Background(), f.request(true))
	require.NoError(t, err)
	require.True(t, out.Report.Stamped)

	data, err := os.ReadFile(f.facts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"), "stamped file stays JSON:\n%s", data)
	assert.Contains(t, string(data), `"verified": "`+out.Token+`"`)
	assert.NoError(t, f.p.VerifyToken(f.rules, f.facts))
}

func TestVerify_TamperedEnvelopeFailsTokenCheck(t *testing.T) {
	f := newFixture(t, capsRulespec, "feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n")

	_, err := f.p.Verify(context.Background(), f.request(true))
	require.NoError(t, err)

	data, err := os.ReadFile(f.facts)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "src/x.rs", "lib/x.rs", 1)
	require.NoError(t, os.WriteFile(f.facts, []byte(tampered), 0644))

	assert.ErrorIs(t, f.p.VerifyToken(f.rules, f.facts), envelope.ErrTokenMismatch)
}

func TestVerify_FailingRunDoesNotStamp(t *testing.T) {
	facts := "feature:\n  file: lib/x.rs\n  capabilities: [parse]\n"
	f := newFixture(t, capsRulespec, facts)

	out, err := f.p.Verify(context.Background(), f.request(true))
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, out.Report.Summary.Status)
	assert.Equal(t, 2, out.Report.Result.FailedCount)
	assert.False(t, out.Report.Stamped)
	assert.Empty(t, out.Token)

	data, err := os.ReadFile(f.facts)
	require.NoError(t, err)
	assert.Equal(t, facts, string(data), "facts file untouched")

	_, err = os.Stat(filepath.Join(f.dir, "verification.key"))
	assert.True(t, os.IsNotExist(err), "no key created without stamping")
}

func TestVerify_Skips(t *testing.T) {
	t.Run("missing rulespec", func(t *testing.T) {
		f := newFixture(t, "", "a: 1\n")
		out, err := f.p.Verify(context.Background(), f.request(true))
		require.NoError(t, err)
		assert.Nil(t, out.Report)
		assert.Contains(t, out.Skipped, "No rulespec found")
	})

	t.Run("no predicates", func(t *testing.T) {
		f := newFixture(t, "claims:\n  - name: a\n    selector: a\n", "a: 1\n")
		out, err := f.p.Verify(context.Background(), f.request(true))
		require.NoError(t, err)
		assert.Nil(t, out.Report)
		assert.Contains(t, out.Skipped, "has no predicates")
	})
}

func TestVerify_SpecificationErrors(t *testing.T) {
	t.Run("schema", func(t *testing.T) {
		f := newFixture(t, "predicates:\n  - claim: a\n    rule: startswith\n", "a: 1\n")
		_, err := f.p.Verify(context.Background(), f.request(false))

		var schemaErr *validate.SchemaError
		assert.True(t, errors.As(err, &schemaErr), "got %v", err)
	})

	t.Run("compile", func(t *testing.T) {
		f := newFixture(t, "claims:\n  - name: a\n    selector: a\npredicates:\n  - claim: b\n    rule: exists\n", "a: 1\n")
		_, err := f.p.Verify(context.Background(), f.request(false))

		var compileErr *compile.Error
		require.True(t, errors.As(err, &compileErr), "got %v", err)
		assert.ErrorIs(t, err, compile.ErrUnknownClaim)
		assert.Equal(t, 0, compileErr.Predicate)
	})
}

func TestVerify_EnvelopeFactsRoot(t *testing.T) {
	f := newFixture(t, capsRulespec, "facts:\n  feature:\n    file: src/x.rs\n    capabilities: [a, b]\nverified: inv1:stale\n")

	out, err := f.p.Verify(context.Background(), f.request(false))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Report.Summary.Status)
}

func TestCompileRules(t *testing.T) {
	f := newFixture(t, capsRulespec, "a: 1\n")

	out, err := f.p.CompileRules(f.rules)
	require.NoError(t, err)
	assert.Len(t, out.Compiled.Predicates, 2)
	assert.Contains(t, out.Program, `pred_rule(0, /min_length, "caps").`)
	assert.Contains(t, out.Program, "# pred[1]: matches file '^src/'  -- sources live under src")
	assert.NotContains(t, out.Program, "check_holds(")
}

func TestRenderReport(t *testing.T) {
	f := newFixture(t, capsRulespec, "feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n")
	out, err := f.p.Verify(context.Background(), f.request(false))
	require.NoError(t, err)

	var buf bytes.Buffer
	jsonPath := filepath.Join(f.dir, "report.json")
	mdPath := filepath.Join(f.dir, "report.md")
	require.NoError(t, f.p.RenderReport(&buf, out.Report, jsonPath, mdPath, true))

	assert.Contains(t, buf.String(), "✓ Wrote JSON: "+jsonPath)
	assert.Contains(t, buf.String(), "Invariant verification: 2/2 passed")
	assert.FileExists(t, mdPath)
}

func TestBatchVerifier(t *testing.T) {
	f := newFixture(t, capsRulespec, "feature:\n  file: src/x.rs\n  capabilities: [parse, eval]\n")
	outDir := filepath.Join(f.dir, "batch")

	rep, err := f.p.ForBatch(f.rules, outDir, false).VerifyFile(context.Background(), f.facts)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, rep.Summary.Status)
	assert.FileExists(t, filepath.Join(outDir, OutputName(f.facts), "datalog_evaluation.txt"))

	_, err = f.p.ForBatch(filepath.Join(f.dir, "missing.yaml"), outDir, false).VerifyFile(context.Background(), f.facts)
	assert.Error(t, err)
}

func TestLoader_Limits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 64)), 0644))

	_, err := NewLoader(16).LoadEnvelope(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	_, err = NewLoader(0).LoadRulespec(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrNoRulespec)
}

func TestRulespecPath(t *testing.T) {
	assert.Equal(t, filepath.Join("work", "analysis", "rulespec.yaml"), RulespecPath("work", ""))
	assert.Equal(t, filepath.Join("work", "rules.yaml"), RulespecPath("work", "rules.yaml"))
	assert.Equal(t, "/abs/rules.yaml", RulespecPath("work", "/abs/rules.yaml"))
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "tmp_envelope", OutputName("/tmp/envelope.yaml"))
	assert.Equal(t, "runs_task-12.facts", OutputName("runs/task 12.facts.json"))
	assert.Equal(t, "hidden", OutputName(".hidden"))
	assert.Equal(t, "facts", OutputName(""))
	assert.Len(t, OutputName(strings.Repeat("a/", 80)+"x.yaml"), 100)
}
