package extract

import (
	"strings"

	"github.com/ppiankov/factcheck/internal/model"
)

// verdictStrategy tries to read a label out of a judgment response
type verdictStrategy func(text string, classes model.LabelSet) (model.Label, bool)

// verdictStrategies are tried in order; the first match wins
var verdictStrategies = []verdictStrategy{
	fromCodeSpan,
	fromBold,
	fromContainment,
}

// Verdict extracts a label from a judgment response, restricted to the
// candidate classes
func Verdict(text string, classes model.LabelSet) (model.Label, bool) {
	if len(classes) == 0 {
		return "", false
	}
	for _, strategy := range verdictStrategies {
		if l, ok := strategy(text, classes); ok {
			return l, true
		}
	}
	return "", false
}

func fromCodeSpan(text string, classes model.LabelSet) (model.Label, bool) {
	span, ok := LastCodeSpan(text)
	if !ok {
		return "", false
	}
	return matchClass(span, classes)
}

func fromBold(text string, classes model.LabelSet) (model.Label, bool) {
	spans := BoldSpans(text)
	for i := len(spans) - 1; i >= 0; i-- {
		if l, ok := matchClass(spans[i], classes); ok {
			return l, true
		}
	}
	return "", false
}

// fromContainment looks for any class value in the text, longest first so
// that "not enough information" is not read as a shorter label
func fromContainment(text string, classes model.LabelSet) (model.Label, bool) {
	lower := strings.ToLower(text)
	for _, l := range classes.ByLength() {
		if strings.Contains(lower, string(l)) {
			return l, true
		}
	}
	return "", false
}

func matchClass(s string, classes model.LabelSet) (model.Label, bool) {
	normalized := model.NormalizeLabelText(s)
	for _, l := range classes {
		if model.NormalizeLabelText(string(l)) == normalized {
			return l, true
		}
	}
	return "", false
}
