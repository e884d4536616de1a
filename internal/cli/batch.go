package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factcheck/internal/pipeline"
	"github.com/ppiankov/factcheck/internal/score"
	"github.com/ppiankov/factcheck/internal/worker"
)

var (
	concurrency        int
	outputDir          string
	batchTimeout       time.Duration
	resultTimeout      time.Duration
	writeReports       bool
	mergeCherryPicking bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <claims.jsonl>",
	Short: "Fact-check many claims in parallel and score the predictions",
	Long: `Batch checks every claim of a JSONL file concurrently:
- Read claims (id, text, images, author, date, origin, label)
- Check them with a pool of workers, each owning its own tools
- Write predictions.jsonl with one verdict per claim
- Write results.yaml with accuracy over labeled, non-refused predictions

Example:
  factcheck batch claims.jsonl
  factcheck batch claims.jsonl --workers 4 --output-dir ./runs/averitec
  factcheck batch claims.jsonl --backend kb --kb corpus.jsonl --merge-cherrypicking`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "workers", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default from config)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 24*time.Hour, "total timeout for batch processing")
	batchCmd.Flags().DurationVar(&resultTimeout, "result-timeout", 0, "give up when no claim finishes within this time (default from config)")

	// Output flags
	batchCmd.Flags().BoolVar(&writeReports, "reports", false, "write a JSON and Markdown report per claim")
	batchCmd.Flags().BoolVar(&mergeCherryPicking, "merge-cherrypicking", false, "score cherry-picking as conflicting evidence")

	addRunFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Concurrency.Workers = concurrency
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	if cmd.Flags().Changed("result-timeout") {
		cfg.Concurrency.ResultTimeout = resultTimeout
	}
	if mergeCherryPicking {
		cfg.Loop.MergeCherryPicking = true
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Factcheck Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Variant:      %s\n", cfg.Loop.Variant)
	fmt.Fprintf(os.Stderr, "\n")

	fmt.Fprintf(os.Stderr, "⚙️  Reading claims from file...\n")
	claims, err := worker.ReadClaims(file)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d claims\n\n", len(claims))

	startMetrics(ctx, cfg.Output.MetricsAddr, logger)

	shared, err := pipeline.NewShared(cfg, logger)
	if err != nil {
		return fmt.Errorf("build shared resources: %w", err)
	}
	factory := func(int) (worker.Checker, error) {
		checker, err := shared.NewChecker()
		if err != nil {
			return nil, err
		}
		return checker, nil
	}

	processor := worker.NewBatchProcessor(factory, cfg.Concurrency.Workers,
		worker.WithQueueSize(cfg.Concurrency.QueueSize),
		worker.WithResultTimeout(pipeline.Timeout(cfg)),
		worker.WithBatchLogger(logger.Named("batch")),
		worker.WithProgress(func(done, total int, r *worker.ClaimResult) {
			if r.Error != nil {
				fmt.Fprintf(os.Stderr, "✗ [%d/%d] %s: %v\n", done, total, r.ClaimID, r.Error)
				return
			}
			verdict := "undecided"
			if r.Report != nil && r.Report.Verdict != nil {
				verdict = string(*r.Report.Verdict)
			}
			fmt.Fprintf(os.Stderr, "✓ [%d/%d] %s: %s (%s)\n", done, total, r.ClaimID, verdict, r.Duration.Round(time.Second))
		}))

	fmt.Fprintf(os.Stderr, "⚙️  Checking claims with %d workers...\n\n", cfg.Concurrency.Workers)
	start := time.Now()
	results, procErr := processor.Process(ctx, claims)
	elapsed := time.Since(start)
	if procErr != nil && !errors.Is(procErr, worker.ErrIncomplete) {
		return fmt.Errorf("process claims: %w", procErr)
	}

	scorer := score.NewScorer(score.WithMergedCherryPicking(cfg.Loop.MergeCherryPicking))
	predictions := make([]score.Prediction, 0, len(results))
	renderer := pipeline.NewRenderer()
	for _, id := range sortedIDs(results) {
		r := results[id]
		predictions = append(predictions, score.NewPrediction(r.Claim, r.Report, r.Error))

		if writeReports && r.Report != nil {
			base := filepath.Join(cfg.Output.Dir, "reports", sanitizeFilename(id))
			if err := renderer.RenderJSON(r.Report, base+".json"); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", id, err)
			}
			if err := renderer.RenderMarkdown(r.Report, base+".md"); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", id, err)
			}
		}
	}

	predPath := filepath.Join(cfg.Output.Dir, "predictions.jsonl")
	if err := scorer.WritePredictions(predPath, predictions); err != nil {
		return err
	}
	summary := scorer.Calculate(predictions, len(claims), elapsed)
	resultsPath := filepath.Join(cfg.Output.Dir, "results.yaml")
	if err := score.WriteSummary(resultsPath, summary); err != nil {
		return err
	}

	printSummary(summary, predPath, resultsPath)

	if procErr != nil {
		return fmt.Errorf("%w: %d of %d claims checked", procErr, len(results), len(claims))
	}
	return nil
}

func printSummary(sum score.Summary, predPath, resultsPath string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:       %d claims\n", sum.Total)
	fmt.Fprintf(os.Stderr, "  Refused:     %d\n", sum.Refused)
	fmt.Fprintf(os.Stderr, "  Failures:    %d\n", sum.Failed)
	if sum.Missing > 0 {
		fmt.Fprintf(os.Stderr, "  Missing:     %d\n", sum.Missing)
	}
	if sum.Accuracy != nil {
		fmt.Fprintf(os.Stderr, "  Accuracy:    %.1f %%\n", *sum.Accuracy*100)
	}
	if sum.Duration != "" {
		fmt.Fprintf(os.Stderr, "  Duration:    %s\n", sum.Duration)
	}
	for _, name := range sum.Labels() {
		stats := sum.PerLabel[name]
		fmt.Fprintf(os.Stderr, "    %-36s predicted %3d  target %3d  correct %3d\n", name, stats.Predicted, stats.Target, stats.Correct)
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Predictions: %s\n", predPath)
	fmt.Fprintf(os.Stderr, "  Results:     %s\n", resultsPath)
	fmt.Fprintf(os.Stderr, "\n")
}

func sortedIDs(results map[string]*worker.ClaimResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sanitizeFilename makes a claim ID safe to use as a file name
func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		default:
			out = append(out, '_')
		}
	}

	s = string(out)
	if s == "" || s == "." || s == ".." {
		s = "claim"
	}
	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
