package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/action"
	"github.com/ppiankov/factcheck/internal/model"
)

// Markers the plan prompt asks the model to use
const (
	ReasoningMarker   = "REASONING:"
	NextActionsMarker = "NEXT_ACTIONS:"
)

// DefaultActionLimit caps the actions taken from one response
const DefaultActionLimit = 5

// ActionExtractor turns free-text LLM output into typed actions
type ActionExtractor struct {
	registry *action.Registry
	limit    int
	logger   *zap.Logger
}

// NewActionExtractor creates a new action extractor
func NewActionExtractor(registry *action.Registry, limit int, logger *zap.Logger) *ActionExtractor {
	if limit <= 0 {
		limit = DefaultActionLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionExtractor{
		registry: registry,
		limit:    limit,
		logger:   logger,
	}
}

// Extract parses actions from raw. Calls in the last fenced code block win;
// otherwise the whole text is scanned. If nothing is found and the response
// carries no reasoning marker, the claim's fallback action is returned.
// The result is deduplicated by key and truncated to the limit.
func (e *ActionExtractor) Extract(raw string, claim *model.Claim) []model.Action {
	var actions []model.Action
	if block, ok := LastCodeBlock(raw); ok {
		actions = e.parseAll(block)
	}
	if len(actions) == 0 {
		actions = e.parseAll(raw)
	}

	if len(actions) == 0 && !strings.Contains(raw, ReasoningMarker) {
		if fb := action.Fallback(claim); fb != nil {
			e.logger.Debug("no actions in response, using fallback", zap.String("action", fb.String()))
			actions = []model.Action{fb}
		}
	}

	return dedupe(actions, e.limit)
}

// ParseCall builds a single action from call text like search("x")
func (e *ActionExtractor) ParseCall(call string) (model.Action, error) {
	calls := FindCalls(call, e.registry.Names())
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: %q", action.ErrUnknownAction, strings.TrimSpace(call))
	}
	c := calls[0]
	args, kwargs := ParseArguments(c.Args)
	return e.registry.Build(c.Name, args, kwargs)
}

func (e *ActionExtractor) parseAll(text string) []model.Action {
	var actions []model.Action
	for _, c := range FindCalls(text, e.registry.Names()) {
		args, kwargs := ParseArguments(c.Args)
		a, err := e.registry.Build(c.Name, args, kwargs)
		if err != nil {
			e.logger.Warn("dropping unparseable action",
				zap.String("call", c.Text()),
				zap.Error(err))
			continue
		}
		actions = append(actions, a)
	}
	return actions
}

// dedupe keeps the first occurrence of each key, up to limit actions
func dedupe(actions []model.Action, limit int) []model.Action {
	seen := make(map[string]bool, len(actions))
	var out []model.Action
	for _, a := range actions {
		if seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Reasoning returns the text following the reasoning marker up to the
// first code fence, or the response without code blocks when no marker
// is present
func Reasoning(raw string) string {
	idx := strings.Index(raw, ReasoningMarker)
	if idx < 0 {
		return RemoveCodeBlocks(raw)
	}

	rest := raw[idx+len(ReasoningMarker):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	if end := strings.Index(rest, NextActionsMarker); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
