// Package tool defines the executors behind fact-checking actions.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/factcheck/internal/model"
)

var (
	// ErrNoTool is returned when no tool serves an action
	ErrNoTool = errors.New("no tool for action")

	// ErrWrongAction is returned when a tool receives an action it does not serve
	ErrWrongAction = errors.New("action not supported by tool")

	// ErrUnresolvedImage is returned when an image token does not map to a claim image
	ErrUnresolvedImage = errors.New("unresolved image reference")
)

// Tool executes one or more kinds of action
type Tool interface {
	// Name identifies the tool in logs and metrics
	Name() string

	// Actions lists the action names the tool serves
	Actions() []string

	// Perform executes the action. The claim resolves image tokens.
	Perform(ctx context.Context, action model.Action, claim *model.Claim) (model.Result, error)
}

// Summarizable tools have their results condensed by the LLM before they
// enter the report. Results of other tools, and results for which the
// prompt is empty, are taken verbatim.
type Summarizable interface {
	SummaryPrompt(action model.Action, result model.Result, report *model.Report) string
}

// Partitioned tools scope their data to one claim at a time
type Partitioned interface {
	SetPartition(claimID string) error
}

// Set maps action names to the tools serving them
type Set struct {
	tools    []Tool
	byAction map[string]Tool
}

// NewSet builds a tool set. Two tools serving the same action is an error.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{byAction: make(map[string]Tool)}
	for _, t := range tools {
		if t == nil {
			continue
		}
		for _, name := range t.Actions() {
			if prev, ok := s.byAction[name]; ok {
				return nil, fmt.Errorf("action %q served by both %s and %s", name, prev.Name(), t.Name())
			}
			s.byAction[name] = t
		}
		s.tools = append(s.tools, t)
	}
	return s, nil
}

// For returns the tool serving action
func (s *Set) For(action string) (Tool, error) {
	t, ok := s.byAction[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTool, action)
	}
	return t, nil
}

// Serves reports whether some tool serves action
func (s *Set) Serves(action string) bool {
	_, ok := s.byAction[action]
	return ok
}

// Actions returns the served action names, sorted
func (s *Set) Actions() []string {
	names := make([]string, 0, len(s.byAction))
	for name := range s.byAction {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the tools in registration order
func (s *Set) Tools() []Tool {
	return append([]Tool(nil), s.tools...)
}

// SetPartition scopes every partitioned tool to claimID
func (s *Set) SetPartition(claimID string) error {
	var errs []error
	for _, t := range s.tools {
		if p, ok := t.(Partitioned); ok {
			if err := p.SetPartition(claimID); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// ImageReference resolves the image token of an action to its file path or
// URL through the claim
func ImageReference(token string, claim *model.Claim) (string, error) {
	if claim == nil {
		return "", fmt.Errorf("%w: %s (no claim)", ErrUnresolvedImage, token)
	}
	img, ok := claim.ResolveImage(token)
	if !ok || img.Reference == "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedImage, token)
	}
	return img.Reference, nil
}
