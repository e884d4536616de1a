package model

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrVerdictAlreadySet is returned when a report's verdict is set twice
var ErrVerdictAlreadySet = errors.New("verdict already set")

// Report is the fact-checking document for one claim. It is the sole
// mutable state of a run and must be used from a single goroutine.
type Report struct {
	Claim         *Claim
	ReasoningLog  []string
	ActionsTaken  []Action
	EvidenceLog   []Evidence
	Verdict       *Label
	Justification string

	// MaxEvidenceLen caps each evidence body when rendering (0 = no cap)
	MaxEvidenceLen int

	blocks []block
	keys   map[string]bool
	logger *zap.Logger
}

type blockKind int

const (
	blockReasoning blockKind = iota
	blockActions
	blockEvidence
)

// block is one causally ordered section of the rendered report
type block struct {
	kind      blockKind
	reasoning string
	actions   []Action
	evidence  []Evidence
}

// NewReport creates an empty report for the claim
func NewReport(claim *Claim, logger *zap.Logger) *Report {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Report{
		Claim:  claim,
		keys:   make(map[string]bool),
		logger: logger,
	}
}

// AddReasoning appends a reasoning snippet
func (r *Report) AddReasoning(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.ReasoningLog = append(r.ReasoningLog, text)
	r.blocks = append(r.blocks, block{kind: blockReasoning, reasoning: text})
}

// AddActions records the actions that are not yet taken and returns them.
// Duplicates are skipped with a warning.
func (r *Report) AddActions(actions []Action) []Action {
	if r.keys == nil {
		r.keys = make(map[string]bool)
	}

	var added []Action
	for _, a := range actions {
		if a == nil {
			continue
		}
		key := a.Key()
		if r.keys[key] {
			r.log().Warn("action already taken, skipping", zap.String("action", a.String()))
			continue
		}
		r.keys[key] = true
		added = append(added, a)
	}

	if len(added) > 0 {
		r.ActionsTaken = append(r.ActionsTaken, added...)
		r.blocks = append(r.blocks, block{kind: blockActions, actions: added})
	}
	return added
}

// AddEvidence appends one batch of evidence
func (r *Report) AddEvidence(evidence []Evidence) {
	if len(evidence) == 0 {
		return
	}
	r.EvidenceLog = append(r.EvidenceLog, evidence...)
	r.blocks = append(r.blocks, block{kind: blockEvidence, evidence: evidence})
}

// HasAction reports whether an equal action was already taken
func (r *Report) HasAction(a Action) bool {
	return a != nil && r.keys[a.Key()]
}

// AllActions returns the actions taken so far
func (r *Report) AllActions() []Action {
	return append([]Action(nil), r.ActionsTaken...)
}

// UsefulEvidence returns the evidence entries that carry takeaways
func (r *Report) UsefulEvidence() []Evidence {
	var out []Evidence
	for _, e := range r.EvidenceLog {
		if e.IsUseful() {
			out = append(out, e)
		}
	}
	return out
}

// SetVerdict stores the final label; it can be set only once
func (r *Report) SetVerdict(label Label) error {
	if r.Verdict != nil {
		return fmt.Errorf("%w: have %q, got %q", ErrVerdictAlreadySet, *r.Verdict, label)
	}
	r.Verdict = &label
	return nil
}

// SetJustification stores the final justification text
func (r *Report) SetJustification(text string) {
	r.Justification = strings.TrimSpace(text)
}

// String renders the document shown to the LLM
func (r *Report) String() string {
	var b strings.Builder

	if r.Claim != nil {
		b.WriteString(r.Claim.String())
	}

	for _, blk := range r.blocks {
		switch blk.kind {
		case blockReasoning:
			fmt.Fprintf(&b, "\n\n## Reasoning\n%s", blk.reasoning)
		case blockActions:
			b.WriteString("\n\n## Actions\n```\n")
			for _, a := range blk.actions {
				b.WriteString(a.String())
				b.WriteString("\n")
			}
			b.WriteString("```")
		case blockEvidence:
			b.WriteString("\n\n## Evidence")
			for _, e := range blk.evidence {
				fmt.Fprintf(&b, "\n%s", e.Render(r.MaxEvidenceLen))
			}
		}
	}

	if r.Verdict != nil {
		fmt.Fprintf(&b, "\n\n### Verdict: %s", strings.ToUpper(string(*r.Verdict)))
	}
	if r.Justification != "" {
		fmt.Fprintf(&b, "\n\n### Justification\n%s", r.Justification)
	}

	return b.String()
}

func (r *Report) log() *zap.Logger {
	if r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}
