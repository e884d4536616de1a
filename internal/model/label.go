package model

import (
	"regexp"
	"sort"
	"strings"
)

// Label is a verdict class
type Label string

const (
	LabelSupported     Label = "supported"
	LabelRefuted       Label = "refuted"
	LabelNEI           Label = "not enough information" // Only legal in non-final rounds
	LabelConflicting   Label = "conflicting evidence/cherrypicking"
	LabelCherryPicking Label = "cherry-picking"
	LabelRefused       Label = "refused to answer" // Distinguished outcome for unresolvable claims
	LabelOutOfContext  Label = "out of context"
	LabelMiscaptioned  Label = "miscaptioned"
	LabelAccurate      Label = "accurate"
)

// AllLabels lists every known label in a stable order
var AllLabels = []Label{
	LabelSupported,
	LabelRefuted,
	LabelNEI,
	LabelConflicting,
	LabelCherryPicking,
	LabelRefused,
	LabelOutOfContext,
	LabelMiscaptioned,
	LabelAccurate,
}

// DefaultDefinitions describes each label for judgment prompts
var DefaultDefinitions = map[Label]string{
	LabelSupported: "The knowledge from the fact-check supports or at least strongly implies the Claim. " +
		"Mere plausibility is not enough for this decision.",
	LabelRefuted: "The knowledge from the fact-check clearly refutes the Claim. The mere absence or lack " +
		"of supporting evidence is not enough reason for being refuted (argument from ignorance).",
	LabelNEI: "The fact-check does not contain sufficient information to come to a conclusion. For example, " +
		"there is substantial lack of evidence. In this case, state which information exactly is missing. " +
		"In particular, if no RESULTS or sources are available, pick this decision.",
	LabelConflicting: "The Claim has both supporting and refuting evidence from multiple sources, or the " +
		"Claim is technically true but misleads by excluding important context.",
	LabelCherryPicking: "The Claim is technically true but misleads by excluding important context.",
	LabelRefused:       "The fact-check could not reach a decision.",
	LabelOutOfContext: "The image is used out of context. This means that while the caption may be factually " +
		"correct, the image does not relate to the caption or is used in a misleading way.",
	LabelMiscaptioned: "The claim has a true image, but the caption does not accurately describe the image.",
	LabelAccurate:     "The image and caption pair is truthful. This means the caption accurately describes the content of the image.",
}

var nonSymbolPattern = regexp.MustCompile(`[^\w\-\s]`)

// NormalizeLabelText case-folds and strips punctuation so that free-text
// answers can be compared against label values
func NormalizeLabelText(s string) string {
	s = nonSymbolPattern.ReplaceAllString(s, "")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ParseLabel matches free text against the known labels
func ParseLabel(s string) (Label, bool) {
	normalized := NormalizeLabelText(s)
	if normalized == "" {
		return "", false
	}
	for _, l := range AllLabels {
		if NormalizeLabelText(string(l)) == normalized {
			return l, true
		}
	}
	return "", false
}

// LabelSet is an ordered set of candidate labels
type LabelSet []Label

// NewLabelSet builds a set preserving first occurrence order
func NewLabelSet(labels ...Label) LabelSet {
	var set LabelSet
	for _, l := range labels {
		if !set.Contains(l) {
			set = append(set, l)
		}
	}
	return set
}

// Contains reports whether l is a member
func (s LabelSet) Contains(l Label) bool {
	for _, x := range s {
		if x == l {
			return true
		}
	}
	return false
}

// With returns a copy that also contains l
func (s LabelSet) With(l Label) LabelSet {
	out := append(LabelSet{}, s...)
	if !out.Contains(l) {
		out = append(out, l)
	}
	return out
}

// Without returns a copy with l removed
func (s LabelSet) Without(l Label) LabelSet {
	out := make(LabelSet, 0, len(s))
	for _, x := range s {
		if x != l {
			out = append(out, x)
		}
	}
	return out
}

// ByLength returns the labels sorted by descending value length, so that
// containment checks prefer "not enough information" over shorter values
func (s LabelSet) ByLength() LabelSet {
	out := append(LabelSet{}, s...)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
