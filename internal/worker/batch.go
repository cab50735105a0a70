package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/invariant/internal/model"
)

// Verifier verifies a single fact document
type Verifier interface {
	VerifyFile(ctx context.Context, path string) (*model.Report, error)
}

// VerifyJob represents the verification of one fact document
type VerifyJob struct {
	Index    int
	Path     string
	Verifier Verifier
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	report, err := j.Verifier.VerifyFile(ctx, j.Path)
	return &VerifyResult{
		index:  j.Index,
		Path:   j.Path,
		Report: report,
		Error:  err,
	}
}

// VerifyResult represents the result of a verification job
type VerifyResult struct {
	index  int
	Path   string
	Report *model.Report
	Error  error
}

// GetError returns the error from the verification result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// Passed reports whether the document verified with no failed predicate
func (r *VerifyResult) Passed() bool {
	return r.Error == nil && r.Report != nil && r.Report.Result.AllPassed()
}

// BatchProcessor verifies multiple fact documents concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessPaths verifies the given documents concurrently. Results are
// returned in input order.
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*VerifyResult {
	if len(paths) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for i, path := range paths {
		job := &VerifyJob{
			Index:    i,
			Path:     path,
			Verifier: b.verifier,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()

	ordered := make([]*VerifyResult, len(paths))
	for _, result := range results {
		vr := result.(*VerifyResult)
		ordered[vr.index] = vr
	}

	// Jobs never queued because the context ended
	for i, vr := range ordered {
		if vr == nil {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("verification of %s was not run", paths[i])
			}
			ordered[i] = &VerifyResult{index: i, Path: paths[i], Error: err}
		}
	}

	return ordered
}

// ProcessFile reads document paths from a list file and verifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath string) ([]*VerifyResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read paths: %w", err)
	}

	return b.ProcessPaths(ctx, paths), nil
}

// ReadPathsFromFile reads document paths from a file (one per line).
// Relative paths are resolved against the list file's directory.
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(filePath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}

		// Deduplicate paths
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
