// Package geolocate estimates where a claim image was taken using a remote
// image-to-country classifier.
package geolocate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool"
	"github.com/ppiankov/factcheck/internal/worker"
)

// Prediction is one candidate country
type Prediction struct {
	Country     string  `json:"country"`
	Probability float64 `json:"probability"`
}

// Result is the classifier output
type Result struct {
	Predictions []Prediction
}

// MostLikely returns the top prediction
func (r *Result) MostLikely() (Prediction, bool) {
	if len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	return r.Predictions[0], true
}

func (r *Result) String() string {
	top, ok := r.MostLikely()
	if !ok {
		return "Geolocation failed: no location predicted."
	}

	parts := make([]string, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		parts = append(parts, fmt.Sprintf("%s (%.1f%%)", p.Country, p.Probability*100))
	}
	return fmt.Sprintf("Most likely location: %s\nTop %d locations: %s",
		top.Country, len(r.Predictions), strings.Join(parts, ", "))
}

// IsUseful reports whether any location was predicted
func (r *Result) IsUseful() bool {
	return len(r.Predictions) > 0
}

// Geolocator calls the classifier endpoint. Its results enter the report
// verbatim.
type Geolocator struct {
	client   *resty.Client
	endpoint string
	limiter  *worker.Limiter
}

// New creates a Geolocator for the classifier at endpoint
func New(endpoint string, timeout time.Duration, limiter *worker.Limiter) (*Geolocator, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("geolocator URL is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(1)

	return &Geolocator{
		client:   client,
		endpoint: endpoint,
		limiter:  limiter,
	}, nil
}

// Name returns the tool name
func (g *Geolocator) Name() string {
	return "geolocator"
}

// Actions returns the served actions
func (g *Geolocator) Actions() []string {
	return []string{model.ActionGeolocate}
}

type request struct {
	tool.ImagePayload
	TopK int `json:"top_k"`
}

type response struct {
	Predictions []Prediction `json:"predictions"`
}

// Perform classifies the action's image
func (g *Geolocator) Perform(ctx context.Context, action model.Action, claim *model.Claim) (model.Result, error) {
	act, ok := action.(*model.Geolocate)
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

	topK := act.TopK
	if topK <= 0 {
		topK = model.DefaultGeolocateTopK
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.endpoint); err != nil {
			return nil, err
		}
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request{ImagePayload: payload, TopK: topK}).
		Post(g.endpoint)
	if err != nil {
		return nil, fmt.Errorf("geolocator request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("geolocator error (%d): %s", resp.StatusCode(), resp.String())
	}

	var out response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("unmarshal geolocator response: %w", err)
	}

	preds := out.Predictions
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Probability > preds[j].Probability })
	if len(preds) > topK {
		preds = preds[:topK]
	}

	return &Result{Predictions: preds}, nil
}
