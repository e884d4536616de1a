// Package score evaluates batch predictions against ground-truth labels
package score

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factcheck/internal/model"
)

// Prediction is one line of the predictions file
type Prediction struct {
	ID            string      `json:"id"`
	Claim         string      `json:"claim"`
	Predicted     model.Label `json:"predicted"`
	Target        model.Label `json:"target,omitempty"`
	Justification string      `json:"justification,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// NewPrediction flattens a checked claim. A failed check is recorded as a
// refusal carrying the error.
func NewPrediction(claim *model.Claim, report *model.Report, err error) Prediction {
	p := Prediction{ID: claim.ID, Claim: claim.Text, Target: claim.Target, Predicted: model.LabelRefused}
	if report != nil {
		if report.Verdict != nil {
			p.Predicted = *report.Verdict
		}
		p.Justification = report.Justification
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// LabelStats counts predictions for one label
type LabelStats struct {
	Target    int      `yaml:"target"`
	Predicted int      `yaml:"predicted"`
	Correct   int      `yaml:"correct"`
	Precision *float64 `yaml:"precision,omitempty"`
	Recall    *float64 `yaml:"recall,omitempty"`
}

// Summary is the content of results.yaml
type Summary struct {
	Total       int                   `yaml:"total_samples"`
	Refused     int                   `yaml:"refused_predictions"`
	Failed      int                   `yaml:"failed_checks,omitempty"`
	Missing     int                   `yaml:"missing_results,omitempty"`
	Correct     *int                  `yaml:"correct_predictions,omitempty"`
	Wrong       *int                  `yaml:"wrong_predictions,omitempty"`
	Accuracy    *float64              `yaml:"accuracy,omitempty"` // Over non-refused predictions
	Duration    string                `yaml:"run_duration,omitempty"`
	PerLabel    map[string]LabelStats `yaml:"per_label,omitempty"`
	Unevaluated int                   `yaml:"unlabeled_samples,omitempty"`
}

// Scorer computes batch summaries
type Scorer struct {
	mergeCherryPicking bool
}

// Option configures a Scorer
type Option func(*Scorer)

// WithMergedCherryPicking counts cherry-picking as conflicting evidence,
// for benchmarks that do not distinguish the two
func WithMergedCherryPicking(enabled bool) Option {
	return func(s *Scorer) { s.mergeCherryPicking = enabled }
}

// NewScorer creates a new scorer
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize applies the label merging policy to a prediction
func (s *Scorer) Normalize(p Prediction) Prediction {
	p.Predicted = s.label(p.Predicted)
	p.Target = s.label(p.Target)
	return p
}

func (s *Scorer) label(l model.Label) model.Label {
	if s.mergeCherryPicking && l == model.LabelCherryPicking {
		return model.LabelConflicting
	}
	return l
}

// Calculate summarizes predictions. Accuracy is the share of correct
// answers among labeled, non-refused predictions; it is omitted when no
// prediction carries a target.
func (s *Scorer) Calculate(predictions []Prediction, expected int, duration time.Duration) Summary {
	sum := Summary{
		Total:    len(predictions),
		PerLabel: make(map[string]LabelStats),
	}
	if expected > len(predictions) {
		sum.Missing = expected - len(predictions)
	}
	if duration > 0 {
		sum.Duration = duration.Round(time.Second).String()
	}

	labeled, correct := 0, 0
	for _, raw := range predictions {
		p := s.Normalize(raw)
		if p.Error != "" {
			sum.Failed++
		}
		if p.Predicted == model.LabelRefused {
			sum.Refused++
		}

		pred := sum.PerLabel[string(p.Predicted)]
		pred.Predicted++
		sum.PerLabel[string(p.Predicted)] = pred

		if p.Target == "" {
			sum.Unevaluated++
			continue
		}
		target := sum.PerLabel[string(p.Target)]
		target.Target++
		sum.PerLabel[string(p.Target)] = target

		if p.Predicted == model.LabelRefused {
			continue
		}
		labeled++
		if p.Predicted == p.Target {
			correct++
			stats := sum.PerLabel[string(p.Target)]
			stats.Correct++
			sum.PerLabel[string(p.Target)] = stats
		}
	}

	if labeled > 0 {
		wrong := labeled - correct
		acc := float64(correct) / float64(labeled)
		sum.Correct = &correct
		sum.Wrong = &wrong
		sum.Accuracy = &acc

		for name, stats := range sum.PerLabel {
			if stats.Predicted > 0 && name != string(model.LabelRefused) {
				p := float64(stats.Correct) / float64(stats.Predicted)
				stats.Precision = &p
			}
			if stats.Target > 0 {
				r := float64(stats.Correct) / float64(stats.Target)
				stats.Recall = &r
			}
			sum.PerLabel[name] = stats
		}
	}

	return sum
}

// Labels returns the per-label keys in a stable order
func (sum Summary) Labels() []string {
	names := make([]string, 0, len(sum.PerLabel))
	for name := range sum.PerLabel {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WritePredictions writes one JSON object per line, sorted by claim ID
func (s *Scorer) WritePredictions(path string, predictions []Prediction) error {
	sorted := make([]Prediction, len(predictions))
	for i, p := range predictions {
		sorted[i] = s.Normalize(p)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create predictions file: %w", err)
	}
	defer func() { _ = file.Close() }()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, p := range sorted {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode prediction %s: %w", p.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return file.Close()
}

// WriteSummary writes the summary as YAML
func WriteSummary(path string, sum Summary) error {
	data, err := yaml.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
