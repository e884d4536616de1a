package extract

import (
	"testing"

	"github.com/ppiankov/factcheck/internal/model"
)

func TestVerdict(t *testing.T) {
	classes := model.NewLabelSet(model.LabelSupported, model.LabelRefuted, model.LabelConflicting, model.LabelNEI)

	tests := []struct {
		name string
		text string
		want model.Label
		ok   bool
	}{
		{
			name: "last code span wins",
			text: "At first it looked `supported`, but the final answer is `Refuted.`",
			want: model.LabelRefuted,
			ok:   true,
		},
		{
			name: "code span that is not a class falls through to bold",
			text: "Using `search` results the claim is **supported**.",
			want: model.LabelSupported,
			ok:   true,
		},
		{
			name: "last matching bold span",
			text: "**Analysis** shows it is **refuted**, not **supported**",
			want: model.LabelSupported,
			ok:   true,
		},
		{
			name: "containment prefers the longest label",
			text: "There is not enough information, nothing is supported or refuted yet.",
			want: model.LabelNEI,
			ok:   true,
		},
		{
			name: "no match",
			text: "I cannot decide.",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Verdict(tt.text, classes)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Verdict() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestVerdict_RestrictedToClasses(t *testing.T) {
	final := model.NewLabelSet(model.LabelSupported, model.LabelRefuted)

	// NEI is not a candidate, so the containment step finds refuted
	got, ok := Verdict("`not enough information` but leaning refuted", final)
	if !ok || got != model.LabelRefuted {
		t.Errorf("expected refuted, got %q, %v", got, ok)
	}

	if _, ok := Verdict("supported", nil); ok {
		t.Error("expected no verdict without classes")
	}
}

func TestLastCodeSpan_IgnoresFencedBlocks(t *testing.T) {
	text := "Verdict: `supported`\n```\nsearch(\"x\")\n```"
	got, ok := LastCodeSpan(text)
	if !ok || got != "supported" {
		t.Errorf("expected supported, got %q, %v", got, ok)
	}
}
