// Package plan asks the LLM which actions to take next.
package plan

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/action"
	"github.com/ppiankov/factcheck/internal/extract"
	"github.com/ppiankov/factcheck/internal/llm"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
	"github.com/ppiankov/factcheck/internal/tool"
)

// DefaultMaxAttempts bounds the LLM calls per planning round
const DefaultMaxAttempts = 5

// Reasoning recorded for actions the planner adds on its own
const (
	FallbackReasoning = "Performing a search to find information about the claim."
	ImageReasoning    = "Adding image analysis for the image in this claim."
)

// Config tunes a Planner
type Config struct {
	ValidActions []string // Empty means every registered action
	ImageActions []string // Added once for claims with an image
	ExtraRules   string
	MaxAttempts  int
	MaxActions   int  // Per plan
	AllowEmpty   bool // Return no actions instead of the fallback search
}

// Planner proposes the next actions for a report
type Planner struct {
	generator    llm.Generator
	registry     *action.Registry // Restricted to the valid actions
	extractor    *extract.ActionExtractor
	validActions []string
	imageActions []string
	extraRules   string
	maxAttempts  int
	allowEmpty   bool
	logger       *zap.Logger

	now func() time.Time
}

// New creates a Planner. Every valid action and every image action must
// be registered and served by tools, and image actions must operate on an
// image.
func New(generator llm.Generator, registry *action.Registry, tools *tool.Set, cfg Config, logger *zap.Logger) (*Planner, error) {
	if generator == nil {
		return nil, fmt.Errorf("planner needs a generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	valid := cfg.ValidActions
	if len(valid) == 0 {
		valid = registry.Names()
	}
	for _, name := range append(append([]string(nil), valid...), cfg.ImageActions...) {
		if _, ok := registry.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", action.ErrUnknownAction, name)
		}
		if tools != nil && !tools.Serves(name) {
			return nil, fmt.Errorf("%w: %s", tool.ErrNoTool, name)
		}
	}

	multimodal := registry.MultimodalNames()
	for _, name := range cfg.ImageActions {
		if !slices.Contains(multimodal, name) {
			return nil, fmt.Errorf("%w: image action %s does not take an image", action.ErrInvalidArguments, name)
		}
	}

	restricted, err := registry.Restrict(valid)
	if err != nil {
		return nil, fmt.Errorf("restrict registry: %w", err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Planner{
		generator:    generator,
		registry:     registry,
		extractor:    extract.NewActionExtractor(restricted, cfg.MaxActions, logger),
		validActions: valid,
		imageActions: cfg.ImageActions,
		extraRules:   cfg.ExtraRules,
		maxAttempts:  maxAttempts,
		allowEmpty:   cfg.AllowEmpty,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// PlanNextActions returns the actions to perform next and the reasoning
// behind them. Actions already in the report are never returned. An empty
// result means there is nothing left to do. The report is not modified.
func (p *Planner) PlanNextActions(ctx context.Context, report *model.Report, allActions bool) ([]model.Action, string, error) {
	text := prompt.Plan(prompt.PlanInput{
		Report:     report.String(),
		ActionDocs: p.registry.Documentation(p.validActions),
		ExtraRules: p.extraRules,
		AllActions: allActions,
		Now:        p.now(),
	})

	var (
		actions   []model.Action
		reasoning string
	)
	for attempt := 1; attempt <= p.maxAttempts && len(actions) == 0; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		raw, err := p.generator.Generate(llm.WithAttempt(ctx, attempt), text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			p.logger.Warn("plan attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		actions = p.newActions(report, p.extractor.Extract(raw, report.Claim))
		if len(actions) > 0 {
			reasoning = extract.Reasoning(raw)
		} else {
			p.logger.Debug("plan proposed no new actions", zap.Int("attempt", attempt))
		}
	}

	if len(actions) == 0 && !p.allowEmpty {
		if fb := action.Fallback(report.Claim); fb != nil {
			actions = p.newActions(report, []model.Action{fb})
			if len(actions) > 0 {
				p.logger.Info("no actions from LLM, using fallback", zap.String("action", fb.String()))
				reasoning = FallbackReasoning
			}
		}
	}

	if added := p.imageActionsFor(report, actions); len(added) > 0 {
		actions = append(actions, added...)
		if reasoning != "" {
			reasoning += " "
		}
		reasoning += ImageReasoning
	}

	return actions, reasoning, nil
}

// newActions drops actions that are invalid here or already in the report
func (p *Planner) newActions(report *model.Report, actions []model.Action) []model.Action {
	var out []model.Action
	for _, a := range actions {
		if !p.isValid(a.Name()) {
			p.logger.Debug("dropping action outside the valid set", zap.String("action", a.String()))
			continue
		}
		if report.HasAction(a) {
			p.logger.Debug("dropping already taken action", zap.String("action", a.String()))
			continue
		}
		out = append(out, a)
	}
	return out
}

// imageActionsFor returns the image actions not yet taken for the first
// claim image
func (p *Planner) imageActionsFor(report *model.Report, planned []model.Action) []model.Action {
	claim := report.Claim
	if claim == nil || len(p.imageActions) == 0 {
		return nil
	}
	refs := claim.ImageRefs()
	if len(refs) == 0 {
		return nil
	}

	var added []model.Action
	for _, name := range p.imageActions {
		if takenByName(report.ActionsTaken, name) || takenByName(planned, name) {
			continue
		}
		a, err := p.registry.Build(name, []string{refs[0]}, nil)
		if err != nil {
			p.logger.Warn("cannot build image action", zap.String("action", name), zap.Error(err))
			continue
		}
		added = append(added, a)
	}
	return added
}

func (p *Planner) isValid(name string) bool {
	for _, v := range p.validActions {
		if v == name {
			return true
		}
	}
	return false
}

func takenByName(actions []model.Action, name string) bool {
	for _, a := range actions {
		if a.Name() == name {
			return true
		}
	}
	return false
}
