// Package act executes planned actions against their tools and turns the
// results into evidence.
package act

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/llm"
	"github.com/ppiankov/factcheck/internal/metrics"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
	"github.com/ppiankov/factcheck/internal/tool"
)

// DefaultSummaryAttempts bounds the LLM calls spent summarizing one result
const DefaultSummaryAttempts = 3

// referencer is implemented by results that point at rendered artifacts
type referencer interface {
	References() []string
}

// Actor performs actions and collects evidence. It keeps the evidence of
// actions already performed in the current question cycle, so an action
// repeated within a cycle is not executed twice.
type Actor struct {
	tools           *tool.Set
	generator       llm.Generator
	summaryAttempts int
	maxResultLen    int
	logger          *zap.Logger

	performed map[string]model.Evidence
}

// Option configures an Actor
type Option func(*Actor)

// WithSummaryAttempts sets the retry ceiling for result summaries
func WithSummaryAttempts(n int) Option {
	return func(a *Actor) {
		if n > 0 {
			a.summaryAttempts = n
		}
	}
}

// WithMaxResultLen caps raw results handed to the summarizer
func WithMaxResultLen(n int) Option {
	return func(a *Actor) { a.maxResultLen = n }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Actor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Actor over tools. The generator summarizes results of
// summarizable tools; without one, results are taken verbatim.
func New(tools *tool.Set, generator llm.Generator, opts ...Option) *Actor {
	a := &Actor{
		tools:           tools,
		generator:       generator,
		summaryAttempts: DefaultSummaryAttempts,
		logger:          zap.NewNop(),
		performed:       make(map[string]model.Evidence),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reset starts a new question cycle
func (a *Actor) Reset() {
	a.performed = make(map[string]model.Evidence)
}

// SetPartition scopes partitioned tools to claimID
func (a *Actor) SetPartition(claimID string) error {
	return a.tools.SetPartition(claimID)
}

// Perform executes actions in order and returns one evidence entry per
// action. Failures never escape: they become evidence without takeaways.
func (a *Actor) Perform(ctx context.Context, actions []model.Action, report *model.Report) []model.Evidence {
	evidence := make([]model.Evidence, 0, len(actions))
	for _, action := range actions {
		if ev, ok := a.performed[action.Key()]; ok {
			a.logger.Debug("action already performed in this cycle", zap.String("action", action.String()))
			evidence = append(evidence, ev)
			continue
		}

		ev := a.perform(ctx, action, report)
		if ctx.Err() == nil {
			a.performed[action.Key()] = ev
		}
		evidence = append(evidence, ev)
	}
	return evidence
}

func (a *Actor) perform(ctx context.Context, action model.Action, report *model.Report) model.Evidence {
	ev := model.Evidence{Action: action}

	if err := ctx.Err(); err != nil {
		ev.Raw = model.ErrorResult{Action: action.String(), Err: err}
		return ev
	}

	t, err := a.tools.For(action.Name())
	if err != nil {
		a.logger.Warn("no tool for action", zap.String("action", action.String()))
		metrics.ActionsTotal.WithLabelValues(action.Name(), "error").Inc()
		ev.Raw = model.ErrorResult{Action: action.String(), Err: err}
		return ev
	}

	start := time.Now()
	result, err := a.execute(ctx, t, action, report)
	metrics.ActionDuration.WithLabelValues(action.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn("action failed",
			zap.String("action", action.String()),
			zap.String("tool", t.Name()),
			zap.Error(err))
		metrics.ActionsTotal.WithLabelValues(action.Name(), "error").Inc()
		ev.Raw = model.ErrorResult{Action: action.String(), Err: err}
		return ev
	}
	ev.Raw = result

	if result.IsUseful() {
		ev.Takeaways = a.takeaways(ctx, t, action, result, report)
	}

	status := "empty"
	if ev.IsUseful() {
		status = "useful"
	}
	metrics.ActionsTotal.WithLabelValues(action.Name(), status).Inc()
	a.logger.Debug("action performed",
		zap.String("action", action.String()),
		zap.String("status", status),
		zap.Duration("elapsed", time.Since(start)))

	return ev
}

// execute runs the tool, turning a panic into an error
func (a *Actor) execute(ctx context.Context, t tool.Tool, action model.Action, report *model.Report) (result model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", t.Name(), r)
		}
	}()

	result, err = t.Perform(ctx, action, report.Claim)
	if err == nil && result == nil {
		err = fmt.Errorf("tool %s returned no result", t.Name())
	}
	return result, err
}

// takeaways condenses a useful result. Results of tools that do not ask
// for a summary are taken verbatim.
func (a *Actor) takeaways(ctx context.Context, t tool.Tool, action model.Action, result model.Result, report *model.Report) *string {
	s, ok := t.(tool.Summarizable)
	if !ok || a.generator == nil {
		text := result.String()
		return &text
	}

	p := s.SummaryPrompt(action, model.TextResult{Text: model.Truncate(result.String(), a.maxResultLen)}, report)
	if p == "" {
		text := result.String()
		return &text
	}

	summary, ok := a.summarize(ctx, p)
	if !ok {
		return nil
	}

	if ref, ok := result.(referencer); ok {
		if refs := ref.References(); len(refs) > 0 {
			summary += "\n" + strings.Join(refs, "\n")
		}
	}
	return &summary
}

// summarize asks the generator for a summary, retrying transport errors.
// A NONE answer or exhausted attempts mean the result is not useful.
func (a *Actor) summarize(ctx context.Context, p string) (string, bool) {
	for attempt := 1; attempt <= a.summaryAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", false
		}

		text, err := a.generator.Generate(llm.WithAttempt(ctx, attempt), p)
		if err != nil {
			a.logger.Warn("summary attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" || strings.Contains(text, prompt.NoneAnswer) {
			return "", false
		}
		return text, true
	}
	return "", false
}
