// Package manipulation detects edited regions in claim images using a
// remote forensic model.
package manipulation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
	"github.com/ppiankov/factcheck/internal/tool"
	"github.com/ppiankov/factcheck/internal/worker"
)

// SuspicionThreshold is the score above which an image may be manipulated
const SuspicionThreshold = 0.6

// Result is the detector output. Maps are URLs or paths of rendered heatmaps.
type Result struct {
	Score           *float64 `json:"score"`
	LocalizationMap string   `json:"localization_map,omitempty"`
	ConfidenceMap   string   `json:"confidence_map,omitempty"`
	NoiseprintMap   string   `json:"noiseprint_map,omitempty"`
}

func (r *Result) String() string {
	var b strings.Builder
	b.WriteString("Manipulation Detection Results\n")
	if r.Score != nil {
		fmt.Fprintf(&b, "Score: %.3f. (Everything above %.1f might suggest manipulation.)\n", *r.Score, SuspicionThreshold)
	} else {
		b.WriteString("Score: N/A\n")
	}
	b.WriteString(mapLine("Localization map", r.LocalizationMap))
	b.WriteString(mapLine("Confidence map", r.ConfidenceMap))
	b.WriteString(strings.TrimSuffix(mapLine("Noiseprint++", r.NoiseprintMap), "\n"))
	return b.String()
}

// IsUseful reports whether the detector produced a score or a map
func (r *Result) IsUseful() bool {
	return r.Score != nil || r.ConfidenceMap != ""
}

// References lists the rendered maps for appending to the takeaways
func (r *Result) References() []string {
	var refs []string
	for _, m := range []struct{ name, ref string }{
		{"Localization map", r.LocalizationMap},
		{"Confidence map", r.ConfidenceMap},
		{"Noiseprint map", r.NoiseprintMap},
	} {
		if m.ref != "" {
			refs = append(refs, m.name+" at: "+m.ref)
		}
	}
	return refs
}

func mapLine(name, ref string) string {
	if ref == "" {
		return name + ": N/A\n"
	}
	return fmt.Sprintf("%s available: %s.\n", name, ref)
}

// Detector calls the forensic model endpoint
type Detector struct {
	client   *resty.Client
	endpoint string
	limiter  *worker.Limiter
}

// New creates a Detector for the model at endpoint
func New(endpoint string, timeout time.Duration, limiter *worker.Limiter) (*Detector, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("manipulation detector URL is required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &Detector{
		client:   client,
		endpoint: endpoint,
		limiter:  limiter,
	}, nil
}

// Name returns the tool name
func (d *Detector) Name() string {
	return "manipulation_detector"
}

// Actions returns the served actions
func (d *Detector) Actions() []string {
	return []string{model.ActionDetectManipulation}
}

// Perform analyses the action's image
func (d *Detector) Perform(ctx context.Context, action model.Action, claim *model.Claim) (model.Result, error) {
	act, ok := action.(*model.DetectManipulation)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tool.ErrWrongAction, action.Name())
	}

	ref, err := tool.ImageReference(act.Image, claim)
	if err != nil {
		return nil, err
	}
	payload, err := tool.LoadImage(ref)
	if err != nil {
		return nil, err
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, d.endpoint); err != nil {
			return nil, err
		}
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("detector error (%d): %s", resp.StatusCode(), resp.String())
	}

	var out Result
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("unmarshal detector response: %w", err)
	}
	return &out, nil
}

// SummaryPrompt asks the LLM to interpret the score for the claim
func (d *Detector) SummaryPrompt(action model.Action, result model.Result, report *model.Report) string {
	return prompt.SummarizeManipulation(result.String(), report.String())
}
