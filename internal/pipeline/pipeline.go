// Package pipeline wires loading, compilation, evaluation, reporting and
// stamping into a single verification run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/invariant/internal/cache"
	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/datalog"
	"github.com/ppiankov/invariant/internal/envelope"
	"github.com/ppiankov/invariant/internal/eval"
	"github.com/ppiankov/invariant/internal/extract"
	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/report"
	"github.com/ppiankov/invariant/internal/score"
	"github.com/ppiankov/invariant/internal/validate"
)

// Pipeline orchestrates a complete verification run
type Pipeline struct {
	loader    *Loader
	schema    *validate.Validator
	compiler  *compile.Compiler
	extractor *extract.FactExtractor
	evaluator *eval.Evaluator
	scorer    *score.Scorer
	renderer  *report.Renderer
	config    *model.Config
	logger    *zap.Logger

	signerMu sync.Mutex
	signer   *envelope.Signer // Loaded on first use
}

// NewPipeline creates a pipeline with the given configuration
func NewPipeline(cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, err := validate.NewValidator()
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.Cache.Enabled, cfg.Cache.TTL)
	return &Pipeline{
		loader:    NewLoader(DefaultMaxBytes),
		schema:    schema,
		compiler:  compile.NewCompiler(c, logger),
		extractor: extract.NewFactExtractor(logger),
		evaluator: eval.NewEvaluator(compile.NewPatterns(c), cfg.Evaluation.Workers, logger),
		scorer:    score.NewScorer(),
		renderer:  report.NewRenderer(),
		config:    cfg,
		logger:    logger,
	}, nil
}

// WithSigner sets the signer used for stamping and token verification
func (p *Pipeline) WithSigner(s *envelope.Signer) *Pipeline {
	p.signerMu.Lock()
	defer p.signerMu.Unlock()
	p.signer = s
	return p
}

// Request describes one verification run
type Request struct {
	RulesPath string
	FactsPath string
	OutputDir string // Empty uses output.dir from the config
	Stamp     bool   // Stamp the fact document when every predicate passes
}

// Outcome is the result of a verification run
type Outcome struct {
	Report      *model.Report // Nil when the run was skipped
	Skipped     string        // Why verification was skipped
	Program     string
	ProgramPath string
	TracePath   string
	Token       string // Set when the envelope was stamped
}

// Verify runs the full pipeline for one fact document
func (p *Pipeline) Verify(ctx context.Context, req Request) (*Outcome, error) {
	// 1. Load rulespec
	rules, err := p.loader.LoadRulespec(req.RulesPath)
	if errors.Is(err, ErrNoRulespec) {
		msg := fmt.Sprintf("No rulespec found at %s, skipping invariant verification", req.RulesPath)
		p.logger.Info(msg)
		return &Outcome{Skipped: msg}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rulespec: %w", err)
	}

	// 2. Check document shape
	if p.config.Rulespec.SchemaCheck {
		if err := p.schema.Validate(rules.Document); err != nil {
			return nil, err
		}
	}

	// 3. Compile
	compiled, err := p.compiler.Compile(rules.Rulespec)
	if err != nil {
		return nil, err
	}
	if len(compiled.Predicates) == 0 {
		msg := fmt.Sprintf("Rulespec %s has no predicates, skipping invariant verification", req.RulesPath)
		p.logger.Info(msg)
		return &Outcome{Skipped: msg}, nil
	}

	// 4. Load facts
	env, err := p.loader.LoadEnvelope(req.FactsPath)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}

	// 5. Extract facts
	facts := p.extractor.Extract(compiled.Claims, env.Root())

	// 6. Evaluate
	evaluation, err := p.evaluator.Evaluate(ctx, compiled, facts)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	result := evaluation.Result

	// 7. Summarize
	summary := p.scorer.Calculate(compiled, facts, result)

	// 8. Stamp
	out := &Outcome{Program: evaluation.Program}
	stamped := false
	if req.Stamp && result.FailedCount == 0 && result.PassedCount > 0 {
		token, err := p.stamp(req.FactsPath, env, compiled.Source)
		switch {
		case errors.Is(err, envelope.ErrEmptyFacts):
			p.logger.Warn("not stamping envelope without facts", zap.String("path", req.FactsPath))
		case err != nil:
			return nil, fmt.Errorf("stamp envelope: %w", err)
		default:
			out.Token = token
			stamped = true
		}
	}

	// 9. Write program and trace
	dir := req.OutputDir
	if dir == "" {
		dir = p.config.Output.Dir
	}
	if name := p.config.Output.ProgramFile; name != "" {
		out.ProgramPath = filepath.Join(dir, name)
		if err := p.renderer.WriteProgram(evaluation.Program, out.ProgramPath); err != nil {
			return nil, fmt.Errorf("write program: %w", err)
		}
	}
	if name := p.config.Output.TraceFile; name != "" {
		out.TracePath = filepath.Join(dir, name)
		if err := p.renderer.WriteTrace(result, out.TracePath); err != nil {
			return nil, fmt.Errorf("write trace: %w", err)
		}
	}

	// 10. Build report
	out.Report = &model.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Rulespec:    req.RulesPath,
		Facts:       req.FactsPath,
		Result:      result,
		Summary:     summary,
		Stamped:     stamped,
	}

	p.logger.Info("verification complete",
		zap.String("run_id", out.Report.RunID),
		zap.String("facts", req.FactsPath),
		zap.String("status", string(summary.Status)),
		zap.Bool("stamped", stamped))

	return out, nil
}

// CompileOutcome is a validated rulespec with its program skeleton
type CompileOutcome struct {
	Compiled *compile.Compiled
	Program  string // Declarations, predicate rows and verdict rules without facts
}

// CompileRules validates a rulespec without evaluating it
func (p *Pipeline) CompileRules(path string) (*CompileOutcome, error) {
	rules, err := p.loader.LoadRulespec(path)
	if err != nil {
		return nil, err
	}
	if p.config.Rulespec.SchemaCheck {
		if err := p.schema.Validate(rules.Document); err != nil {
			return nil, err
		}
	}
	compiled, err := p.compiler.Compile(rules.Rulespec)
	if err != nil {
		return nil, err
	}
	program, err := datalog.Lower(compiled, model.NewFactSet(), make([]datalog.Holds, len(compiled.Predicates)))
	if err != nil {
		return nil, fmt.Errorf("lower program: %w", err)
	}
	return &CompileOutcome{Compiled: compiled, Program: program}, nil
}

// VerifyToken checks the token stored in the envelope at envelopePath
// against the rulespec at rulesPath
func (p *Pipeline) VerifyToken(rulesPath, envelopePath string) error {
	rules, err := p.loader.LoadRulespec(rulesPath)
	if err != nil {
		return err
	}
	env, err := p.loader.LoadEnvelope(envelopePath)
	if err != nil {
		return err
	}
	signer, err := p.loadSigner()
	if err != nil {
		return err
	}
	return signer.Verify(env, rules.Rulespec)
}

func (p *Pipeline) stamp(path string, env *model.Envelope, rs *model.Rulespec) (string, error) {
	signer, err := p.loadSigner()
	if err != nil {
		return "", err
	}
	return envelope.Stamp(path, env, rs, signer)
}

func (p *Pipeline) loadSigner() (*envelope.Signer, error) {
	p.signerMu.Lock()
	defer p.signerMu.Unlock()
	if p.signer != nil {
		return p.signer, nil
	}

	path := p.config.Token.KeyPath
	if path == "" {
		var err error
		if path, err = envelope.DefaultKeyPath(); err != nil {
			return nil, err
		}
	}
	key, err := envelope.LoadOrCreateKey(path)
	if err != nil {
		return nil, err
	}
	signer, err := envelope.NewSigner(key)
	if err != nil {
		return nil, err
	}
	p.signer = signer
	return signer, nil
}

// RenderReport renders the report to the specified outputs
func (p *Pipeline) RenderReport(w io.Writer, rep *model.Report, jsonPath, mdPath string, verbose bool) error {
	// Render JSON
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(rep, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	// Render Markdown
	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(rep, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.RenderSummary(w, rep)
	return nil
}

// BatchVerifier adapts the pipeline to the batch worker. Each fact
// document writes its program and trace under its own directory.
type BatchVerifier struct {
	pipeline  *Pipeline
	rulesPath string
	outputDir string
	stamp     bool
}

// ForBatch returns a verifier bound to one rulespec
func (p *Pipeline) ForBatch(rulesPath, outputDir string, stamp bool) *BatchVerifier {
	return &BatchVerifier{pipeline: p, rulesPath: rulesPath, outputDir: outputDir, stamp: stamp}
}

// VerifyFile verifies one fact document
func (b *BatchVerifier) VerifyFile(ctx context.Context, path string) (*model.Report, error) {
	out, err := b.pipeline.Verify(ctx, Request{
		RulesPath: b.rulesPath,
		FactsPath: path,
		OutputDir: filepath.Join(b.outputDir, OutputName(path)),
		Stamp:     b.stamp,
	})
	if err != nil {
		return nil, err
	}
	if out.Report == nil {
		return nil, errors.New(out.Skipped)
	}
	return out.Report, nil
}
