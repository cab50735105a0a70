package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ppiankov/invariant/internal/model"
)

func TestExitCode(t *testing.T) {
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("plain error: expected 1, got %d", got)
	}

	wrapped := fmt.Errorf("run: %w", &ExitError{Code: 2, Err: errors.New("1 of 2 invariant(s) failed")})
	if got := ExitCode(wrapped); got != 2 {
		t.Errorf("wrapped exit error: expected 2, got %d", got)
	}
}

func TestFailureError(t *testing.T) {
	passed := &model.Report{Result: &model.ExecutionResult{PassedCount: 3}}
	if err := failureError(passed); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	failed := &model.Report{Result: &model.ExecutionResult{PassedCount: 1, FailedCount: 2}}
	err := failureError(failed)
	if ExitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d", ExitCode(err))
	}
	if err.Error() != "2 of 3 invariant(s) failed" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestSetDefaultsCoverConfigKeys(t *testing.T) {
	setDefaults(model.DefaultConfig())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	want := model.DefaultConfig()
	if cfg.Rulespec.Path != want.Rulespec.Path || cfg.Watch.MinInterval != want.Watch.MinInterval {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}
