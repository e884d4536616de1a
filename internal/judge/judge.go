// Package judge decides a claim's verdict from the fact-check record.
package judge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/extract"
	"github.com/ppiankov/factcheck/internal/llm"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
)

// DefaultMaxAttempts bounds the LLM calls per judgment
const DefaultMaxAttempts = 5

// Config tunes a Judge
type Config struct {
	Classes     []model.Label
	Definitions map[model.Label]string // nil means model.DefaultDefinitions
	ExtraRules  string
	MaxAttempts int
}

// Judge turns a report into a verdict. It remembers the raw response of
// the last judgment, so it is not safe for concurrent use.
type Judge struct {
	generator   llm.Generator
	classes     model.LabelSet
	definitions map[model.Label]string
	extraRules  string
	maxAttempts int
	logger      *zap.Logger

	latestReasoning string
}

// New creates a Judge over the given candidate classes
func New(generator llm.Generator, cfg Config, logger *zap.Logger) (*Judge, error) {
	if generator == nil {
		return nil, fmt.Errorf("judge needs a generator")
	}
	classes := model.NewLabelSet(cfg.Classes...).Without(model.LabelNEI)
	if len(classes) == 0 {
		return nil, fmt.Errorf("judge needs at least one class")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defs := make(map[model.Label]string, len(model.DefaultDefinitions))
	for l, d := range model.DefaultDefinitions {
		defs[l] = d
	}
	for l, d := range cfg.Definitions {
		defs[l] = d
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Judge{
		generator:   generator,
		classes:     classes,
		definitions: defs,
		extraRules:  cfg.ExtraRules,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// Classes returns the candidate classes of a final judgment
func (j *Judge) Classes() model.LabelSet {
	return append(model.LabelSet(nil), j.classes...)
}

// Judge decides the verdict from the full report. Only a non-final
// judgment may answer "not enough information".
func (j *Judge) Judge(ctx context.Context, report *model.Report, isFinal bool) (model.Label, error) {
	classes := j.classes
	if !isFinal {
		classes = classes.With(model.LabelNEI)
	}

	return j.verdict(ctx, prompt.Judge(prompt.JudgeInput{
		Record:      report.String(),
		Classes:     classes,
		Definitions: j.definitions,
		ExtraRules:  j.extraRules,
	}), classes)
}

// JudgeNaively decides from the claim alone, letting the model reason
// from its own knowledge
func (j *Judge) JudgeNaively(ctx context.Context, claim *model.Claim) (model.Label, error) {
	return j.verdict(ctx, prompt.Naive(prompt.JudgeInput{
		Record:      claim.String(),
		Classes:     j.classes,
		Definitions: j.definitions,
		ExtraRules:  j.extraRules,
	}), j.classes)
}

// JudgeMinimally asks for the label of the claim and nothing else
func (j *Judge) JudgeMinimally(ctx context.Context, claim *model.Claim) (model.Label, error) {
	return j.verdict(ctx, prompt.Minimal(prompt.JudgeInput{
		Record:      claim.String(),
		Classes:     j.classes,
		Definitions: j.definitions,
	}), j.classes)
}

// LatestReasoning returns the raw response behind the last verdict, or ""
// if the last judgment was refused
func (j *Judge) LatestReasoning() string {
	return j.latestReasoning
}

// verdict generates until a response arrives, then extracts the label.
// A response without a recognizable label is a refusal.
func (j *Judge) verdict(ctx context.Context, text string, classes model.LabelSet) (model.Label, error) {
	j.latestReasoning = ""

	for attempt := 1; attempt <= j.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		raw, err := j.generator.Generate(llm.WithAttempt(ctx, attempt), text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			j.logger.Warn("judge attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		label, ok := extract.Verdict(raw, classes)
		if !ok {
			j.logger.Warn("no verdict in response, refusing", zap.String("response", model.Truncate(raw, 500)))
			return model.LabelRefused, nil
		}

		j.latestReasoning = raw
		return label, nil
	}

	j.logger.Warn("judge attempts exhausted, refusing", zap.Int("attempts", j.maxAttempts))
	return model.LabelRefused, nil
}
