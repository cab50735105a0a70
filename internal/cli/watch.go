package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/invariant/internal/model"
	"github.com/ppiankov/invariant/internal/pipeline"
	"github.com/ppiankov/invariant/internal/worker"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-verify a fact document whenever it or the rulespec changes",
	Long: `Watch verifies once, then again each time the fact document or the
rulespec is written. Re-verification of a file is throttled by
watch.min_interval and watch.burst.

Envelopes are never stamped in watch mode, since stamping writes the
watched file.

Example:
  invariant watch --facts envelope.yaml
  invariant watch --rules rules.yaml --facts envelope.json`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addRulesFlags(watchCmd)
	watchCmd.Flags().StringVar(&factsPath, "facts", "", "fact document or envelope (YAML or JSON)")
	_ = watchCmd.MarkFlagRequired("facts")
	addEvalFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	rules := resolveRules(cfg)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch directories since editors replace files on save
	targets := map[string]bool{
		filepath.Clean(rules):     true,
		filepath.Clean(factsPath): true,
	}
	dirs := map[string]bool{}
	for target := range targets {
		dirs[filepath.Dir(target)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := worker.NewIntervalLimiter(cfg.Watch.MinInterval, cfg.Watch.Burst)

	fmt.Fprintf(os.Stderr, "Watching %s and %s (Ctrl+C to stop)\n\n", rules, factsPath)
	runOnce(ctx, p, cfg, rules)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nStopped watching")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if !targets[path] || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := limiter.Wait(ctx, path); err != nil {
				return nil
			}
			logger.Debug("file changed", zap.String("path", path), zap.String("op", event.Op.String()))
			fmt.Fprintf(os.Stderr, "⚙️  %s changed, re-verifying...\n", path)
			runOnce(ctx, p, cfg, rules)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", zap.Error(err))
		}
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config, rules string) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.Verify(runCtx, pipeline.Request{RulesPath: rules, FactsPath: factsPath})
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "✗ %v\n\n", err)
	case out.Report == nil:
		fmt.Fprintf(os.Stderr, "ℹ️  %s\n\n", out.Skipped)
	default:
		if err := p.RenderReport(os.Stdout, out.Report, "", "", cfg.Output.Verbose); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n\n", err)
		}
	}
}
