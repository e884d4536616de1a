// Package pipeline drives the plan, act and judge loop for a claim.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/metrics"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool"
)

// Variant selects how a claim is checked
type Variant string

const (
	VariantDynamic    Variant = "dynamic"     // Plan, act and judge until decided
	VariantNaive      Variant = "naive"       // Judge from the model's own knowledge
	VariantNoEvidence Variant = "no_evidence" // Ask for the label only
)

// ParseVariant validates a variant name; empty means dynamic
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case "":
		return VariantDynamic, nil
	case VariantDynamic, VariantNaive, VariantNoEvidence:
		return v, nil
	default:
		return "", fmt.Errorf("unknown variant %q (want dynamic, naive or no_evidence)", s)
	}
}

// Default loop bounds
const (
	DefaultMaxIterations   = 5
	DefaultMinReasoningLen = 32
)

// Planner proposes the next actions
type Planner interface {
	PlanNextActions(ctx context.Context, report *model.Report, allActions bool) ([]model.Action, string, error)
}

// Actor performs actions
type Actor interface {
	Perform(ctx context.Context, actions []model.Action, report *model.Report) []model.Evidence
	Reset()
}

// Judge decides verdicts
type Judge interface {
	Judge(ctx context.Context, report *model.Report, isFinal bool) (model.Label, error)
	JudgeNaively(ctx context.Context, claim *model.Claim) (model.Label, error)
	JudgeMinimally(ctx context.Context, claim *model.Claim) (model.Label, error)
	LatestReasoning() string
}

// Justifier writes the justification of a decided report
type Justifier interface {
	Justify(ctx context.Context, report *model.Report) (string, error)
}

// FactChecker runs the fact-checking loop. It owns a planner, an actor and
// a judge and must not be shared between goroutines.
type FactChecker struct {
	planner         Planner
	actor           Actor
	judge           Judge
	justifier       Justifier
	variant         Variant
	maxIterations   int
	minReasoningLen int
	maxResultLen    int
	allActions      bool
	logger          *zap.Logger

	closers []func() error
}

// Option configures a FactChecker
type Option func(*FactChecker)

// WithJustifier writes a justification after the verdict
func WithJustifier(j Justifier) Option {
	return func(f *FactChecker) { f.justifier = j }
}

// WithVariant selects the checking variant
func WithVariant(v Variant) Option {
	return func(f *FactChecker) { f.variant = v }
}

// WithMaxIterations bounds the planning rounds
func WithMaxIterations(n int) Option {
	return func(f *FactChecker) {
		if n > 0 {
			f.maxIterations = n
		}
	}
}

// WithMinReasoningLen sets the length planner reasoning must exceed to be
// recorded
func WithMinReasoningLen(n int) Option {
	return func(f *FactChecker) { f.minReasoningLen = n }
}

// WithMaxResultLen caps each evidence body in the rendered report
func WithMaxResultLen(n int) Option {
	return func(f *FactChecker) { f.maxResultLen = n }
}

// WithAllActions asks the planner to use every available action
func WithAllActions(all bool) Option {
	return func(f *FactChecker) { f.allActions = all }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(f *FactChecker) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactChecker assembles a fact checker
func NewFactChecker(planner Planner, actor Actor, judge Judge, opts ...Option) (*FactChecker, error) {
	if planner == nil || actor == nil || judge == nil {
		return nil, fmt.Errorf("fact checker needs a planner, an actor and a judge")
	}
	f := &FactChecker{
		planner:         planner,
		actor:           actor,
		judge:           judge,
		variant:         VariantDynamic,
		maxIterations:   DefaultMaxIterations,
		minReasoningLen: DefaultMinReasoningLen,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if _, err := ParseVariant(string(f.variant)); err != nil {
		return nil, err
	}
	return f, nil
}

// Check fact-checks one claim and returns its finished report. Errors are
// returned only when ctx ends; the report built so far is returned with
// them.
func (f *FactChecker) Check(ctx context.Context, claim *model.Claim) (*model.Report, error) {
	if claim == nil {
		return nil, fmt.Errorf("nil claim")
	}
	claim.EnsureID()
	start := time.Now()
	logger := f.logger.With(zap.String("claim_id", claim.ID))

	report := model.NewReport(claim, logger)
	report.MaxEvidenceLen = f.maxResultLen
	f.actor.Reset()

	var (
		label      model.Label
		iterations int
		err        error
	)
	switch f.variant {
	case VariantNaive:
		label, err = f.judge.JudgeNaively(ctx, claim)
	case VariantNoEvidence:
		label, err = f.judge.JudgeMinimally(ctx, claim)
	default:
		label, iterations, err = f.collect(ctx, report)
	}
	if err != nil {
		return report, err
	}

	if label == model.LabelNEI || label == "" {
		logger.Warn("undecided after final judgment, refusing", zap.String("label", string(label)))
		label = model.LabelRefused
	}
	if reasoning := f.judge.LatestReasoning(); reasoning != "" {
		report.AddReasoning(reasoning)
	}
	if err := report.SetVerdict(label); err != nil {
		return report, err
	}

	if f.justifier != nil {
		justification, err := f.justifier.Justify(ctx, report)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			logger.Warn("justification failed", zap.Error(err))
		} else {
			report.SetJustification(justification)
		}
	}

	metrics.VerdictsTotal.WithLabelValues(string(label)).Inc()
	metrics.ClaimDuration.Observe(time.Since(start).Seconds())
	if f.variant == VariantDynamic {
		metrics.Iterations.Observe(float64(iterations))
	}
	logger.Info("claim checked",
		zap.String("verdict", string(label)),
		zap.Int("iterations", iterations),
		zap.Int("actions", len(report.ActionsTaken)),
		zap.Duration("elapsed", time.Since(start)))

	return report, nil
}

// collect alternates planning, acting and non-final judging while the
// verdict is undecided, new actions keep coming and the budget lasts. A
// final judgment is forced if the loop ends undecided.
func (f *FactChecker) collect(ctx context.Context, report *model.Report) (model.Label, int, error) {
	label := model.LabelNEI
	iterations := 0

	for label == model.LabelNEI && iterations < f.maxIterations {
		if err := ctx.Err(); err != nil {
			return "", iterations, err
		}
		iterations++

		actions, reasoning, err := f.planner.PlanNextActions(ctx, report, f.allActions)
		if err != nil {
			return "", iterations, err
		}
		if len(reasoning) > f.minReasoningLen {
			report.AddReasoning(reasoning)
		}

		added := report.AddActions(actions)
		if len(added) > 0 {
			evidence := f.actor.Perform(ctx, added, report)
			report.AddEvidence(evidence)
			if err := ctx.Err(); err != nil {
				return "", iterations, err
			}
		}

		isFinal := iterations == f.maxIterations || len(added) == 0
		label, err = f.judge.Judge(ctx, report, isFinal)
		if err != nil {
			return "", iterations, err
		}
		f.logger.Debug("round judged",
			zap.Int("iteration", iterations),
			zap.Int("new_actions", len(added)),
			zap.Bool("final", isFinal),
			zap.String("label", string(label)))

		if len(added) == 0 {
			break
		}
	}

	if label == model.LabelNEI {
		var err error
		label, err = f.judge.Judge(ctx, report, true)
		if err != nil {
			return "", iterations, err
		}
	}
	return label, iterations, nil
}

// SetPartition scopes the actor's partitioned tools to claimID
func (f *FactChecker) SetPartition(claimID string) error {
	if p, ok := f.actor.(tool.Partitioned); ok {
		return p.SetPartition(claimID)
	}
	return nil
}

// Close releases resources held by the checker's tools
func (f *FactChecker) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
