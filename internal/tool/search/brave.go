package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/worker"
)

// Brave queries the Brave Search API. It serves web and news searches.
type Brave struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	limiter *worker.Limiter
}

// NewBrave creates a Brave backend
func NewBrave(baseURL, apiKey string, timeout time.Duration, limiter *worker.Limiter) (*Brave, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("brave API key is required (set BRAVE_API_KEY)")
	}
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &Brave{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		limiter: limiter,
	}, nil
}

// Name returns the backend name
func (b *Brave) Name() string {
	return "brave"
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Results []braveResult `json:"results"` // News endpoint
}

// Search runs a web or news query
func (b *Brave) Search(ctx context.Context, q Query) ([]model.Source, error) {
	var endpoint string
	switch q.Mode {
	case model.ModeSearch, "":
		endpoint = b.baseURL + "/web/search"
	case model.ModeNews:
		endpoint = b.baseURL + "/news/search"
	default:
		return nil, fmt.Errorf("%w: brave %s", ErrUnsupportedMode, q.Mode)
	}
	if q.Text == "" {
		return nil, fmt.Errorf("%w: brave needs a text query", ErrUnsupportedMode)
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	req := b.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-Subscription-Token", b.apiKey).
		SetQueryParam("q", q.Text)
	if q.Limit > 0 {
		req.SetQueryParam("count", strconv.Itoa(q.Limit))
	}
	if fr := freshness(q); fr != "" {
		req.SetQueryParam("freshness", fr)
	}

	response, err := req.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("brave API error (%d): %s", response.StatusCode(), response.String())
	}

	var result braveResponse
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("unmarshal brave response: %w", err)
	}

	items := result.Web.Results
	if q.Mode == model.ModeNews {
		items = result.Results
	}

	var sources []model.Source
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		date := parseResultDate(it.PageAge)
		if date == nil && len(it.PageAge) >= 10 {
			date = parseResultDate(it.PageAge[:10])
		}
		if !q.InRange(date) {
			continue
		}
		sources = append(sources, model.Source{
			URL:   it.URL,
			Title: it.Title,
			Text:  stripTags(it.Description),
			Date:  date,
		})
	}
	return sources, nil
}

// freshness encodes the date window as Brave's YYYY-MM-DDtoYYYY-MM-DD
func freshness(q Query) string {
	if q.StartDate == nil && q.EndDate == nil {
		return ""
	}
	start := "1970-01-01"
	end := time.Now().Format("2006-01-02")
	if q.StartDate != nil {
		start = q.StartDate.Format("2006-01-02")
	}
	if q.EndDate != nil {
		end = q.EndDate.Format("2006-01-02")
	}
	return start + "to" + end
}

// stripTags removes the <strong> highlighting Brave puts in descriptions
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
