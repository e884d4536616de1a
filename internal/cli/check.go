package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/metrics"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/pipeline"
)

var (
	outJSON       string
	outMD         string
	timeout       time.Duration
	claimID       string
	claimImages   []string
	claimAuthor   string
	claimDate     string
	claimOrigin   string
	llmProvider   string
	llmModel      string
	variant       string
	maxIterations int
	backends      []string
	knowledgeBase string
	geolocatorURL string
	detectorURL   string
	noCache       bool
	noJustify     bool
	allActions    bool
	metricsAddr   string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <claim>",
	Short: "Fact-check a single claim",
	Long: `Check runs the plan, act and judge loop on one claim:
- Plan evidence-gathering actions with the language model
- Execute them (search, geolocation, manipulation detection)
- Judge the claim once the evidence suffices or the budget is spent
- Write a justified report

Images are attached with --image and referenced in the claim as <image:1>,
<image:2>, ... in flag order.

Example:
  factcheck check "The Sahara desert gets snow every winter."
  factcheck check "Flooding in Valencia <image:1>" --image flood.jpg --md report.md
  factcheck check "..." --backend kb --kb corpus.jsonl --claim-id 42`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Claim flags
	checkCmd.Flags().StringVar(&claimID, "claim-id", "", "claim identifier (selects the knowledge base partition)")
	checkCmd.Flags().StringArrayVar(&claimImages, "image", nil, "image file or URL attached to the claim (repeatable)")
	checkCmd.Flags().StringVar(&claimAuthor, "author", "", "author of the claim")
	checkCmd.Flags().StringVar(&claimDate, "date", "", "date of the claim (YYYY-MM-DD)")
	checkCmd.Flags().StringVar(&claimOrigin, "origin", "", "where the claim was found")

	// Output flags
	checkCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	checkCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")

	// Run flags
	checkCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall check timeout")
	addRunFlags(checkCmd)
}

// addRunFlags registers the flags shared by check and batch
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	cmd.Flags().StringVar(&variant, "variant", "", "pipeline variant (dynamic, naive, no_evidence)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "maximum plan/act/judge rounds")
	cmd.Flags().StringSliceVar(&backends, "backend", nil, "search backends (serper, brave, kb)")
	cmd.Flags().StringVar(&knowledgeBase, "kb", "", "knowledge base JSONL file for the kb backend")
	cmd.Flags().StringVar(&geolocatorURL, "geolocator-url", "", "geolocation model endpoint")
	cmd.Flags().StringVar(&detectorURL, "manipulation-url", "", "manipulation detection model endpoint")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response cache")
	cmd.Flags().BoolVar(&noJustify, "no-justify", false, "skip the justification summary")
	cmd.Flags().BoolVar(&allActions, "all-actions", false, "let the planner propose every useful action at once")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

// buildConfig loads the configuration and applies the flags the user set
func buildConfig(cmd *cobra.Command) (model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if flags.Changed("variant") {
		cfg.Loop.Variant = variant
	}
	if flags.Changed("max-iterations") {
		cfg.Loop.MaxIterations = maxIterations
	}
	if flags.Changed("backend") {
		cfg.Search.Backends = backends
	}
	if flags.Changed("kb") {
		cfg.Tools.KnowledgeBase = knowledgeBase
	}
	if flags.Changed("geolocator-url") {
		cfg.Tools.GeolocatorURL = geolocatorURL
	}
	if flags.Changed("manipulation-url") {
		cfg.Tools.ManipulationURL = detectorURL
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noJustify {
		cfg.Loop.Justify = false
	}
	if allActions {
		cfg.Loop.AllActions = true
	}
	if flags.Changed("metrics-addr") {
		cfg.Output.MetricsAddr = metricsAddr
	}
	return cfg, nil
}

// startMetrics serves /metrics in the background until ctx is done
func startMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	fmt.Fprintf(os.Stderr, "Metrics: http://%s/metrics\n", addr)
}

// newClaim builds the claim from the command arguments
func newClaim(text string) (*model.Claim, error) {
	claim := &model.Claim{ID: claimID, Text: text}
	for i, ref := range claimImages {
		claim.Images = append(claim.Images, model.Image{ID: i + 1, Reference: ref})
	}

	if claimAuthor != "" || claimDate != "" || claimOrigin != "" {
		claim.Context = &model.ClaimContext{Author: claimAuthor, Origin: claimOrigin}
		if claimDate != "" {
			date, err := model.ParseDate(claimDate)
			if err != nil {
				return nil, err
			}
			claim.Context.Date = date
		}
	}

	claim.EnsureID()
	return claim, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	claim, err := newClaim(args[0])
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Checking: %s\n", model.Truncate(claim.Text, 80))
		fmt.Fprintf(os.Stderr, "Claim ID: %s\n", claim.ID)
		fmt.Fprintf(os.Stderr, "LLM:      %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Timeout:  %v\n", timeout)
		fmt.Fprintln(os.Stderr)
	}

	startMetrics(ctx, cfg.Output.MetricsAddr, logger)

	checker, err := pipeline.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("build fact checker: %w", err)
	}
	defer func() { _ = checker.Close() }()

	if err := checker.SetPartition(claim.ID); err != nil {
		return fmt.Errorf("select knowledge base partition: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Running fact-check loop...\n")
	}

	report, err := checker.Check(ctx, claim)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	renderer := pipeline.NewRenderer()
	renderer.RenderSummary(os.Stdout, report)

	if outJSON != "" {
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(report, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
		}
	}
	if outJSON == "" && outMD == "" && cfg.Output.Markdown {
		path := filepath.Join(cfg.Output.Dir, claim.ID+".md")
		if err := renderer.RenderMarkdown(report, path); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
	}

	return nil
}
