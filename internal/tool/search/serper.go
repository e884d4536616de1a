package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/worker"
)

// Serper queries the Google results API at serper.dev
type Serper struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	limiter *worker.Limiter
}

// NewSerper creates a Serper backend
func NewSerper(baseURL, apiKey string, timeout time.Duration, limiter *worker.Limiter) (*Serper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serper API key is required (set SERPER_API_KEY)")
	}
	if baseURL == "" {
		baseURL = "https://google.serper.dev"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(3 * time.Second)

	return &Serper{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		limiter: limiter,
	}, nil
}

// Name returns the backend name
func (s *Serper) Name() string {
	return "serper"
}

type serperRequest struct {
	Q   string `json:"q,omitempty"`
	URL string `json:"url,omitempty"` // Lens image URL
	Num int    `json:"num,omitempty"`
	TBS string `json:"tbs,omitempty"` // Date restriction
}

type serperItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date"`
	Source   string `json:"source"`
	ImageURL string `json:"imageUrl"`
	Address  string `json:"address"`
	Website  string `json:"website"`
	Category string `json:"category"`
}

type serperResponse struct {
	Organic []serperItem `json:"organic"`
	News    []serperItem `json:"news"`
	Images  []serperItem `json:"images"`
	Places  []serperItem `json:"places"`
	Visual  []serperItem `json:"visual_matches"`
}

// Search runs the query against the endpoint matching its mode
func (s *Serper) Search(ctx context.Context, q Query) ([]model.Source, error) {
	endpoint, body, err := s.request(q)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-KEY", s.apiKey).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("serper API error (%d): %s", response.StatusCode(), response.String())
	}

	var result serperResponse
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("unmarshal serper response: %w", err)
	}

	return s.sources(q, result), nil
}

func (s *Serper) request(q Query) (string, serperRequest, error) {
	body := serperRequest{Q: q.Text, Num: q.Limit, TBS: dateRestriction(q)}

	switch q.Mode {
	case model.ModeReverse:
		if q.ImageURL == "" {
			return "", body, fmt.Errorf("reverse search needs an image URL")
		}
		body.URL = q.ImageURL
		body.TBS = ""
		return s.baseURL + "/lens", body, nil
	case model.ModeNews:
		return s.baseURL + "/news", body, nil
	case model.ModeImages:
		return s.baseURL + "/images", body, nil
	case model.ModePlaces:
		return s.baseURL + "/places", body, nil
	default:
		return s.baseURL + "/search", body, nil
	}
}

func (s *Serper) sources(q Query, result serperResponse) []model.Source {
	var items []serperItem
	switch q.Mode {
	case model.ModeNews:
		items = result.News
	case model.ModeImages:
		items = result.Images
	case model.ModePlaces:
		items = result.Places
	case model.ModeReverse:
		items = append(result.Visual, result.Organic...)
	default:
		items = result.Organic
	}

	var sources []model.Source
	for _, it := range items {
		link := it.Link
		if link == "" {
			link = it.Website
		}
		if link == "" {
			continue
		}

		text := it.Snippet
		if q.Mode == model.ModePlaces {
			text = strings.TrimSpace(it.Category + " " + it.Address)
		}

		date := parseResultDate(it.Date)
		if !q.InRange(date) {
			continue
		}

		sources = append(sources, model.Source{
			URL:   link,
			Title: it.Title,
			Text:  text,
			Date:  date,
		})
	}
	return sources
}

// dateRestriction encodes the query's date window as a Google tbs value
func dateRestriction(q Query) string {
	if q.StartDate == nil && q.EndDate == nil {
		return ""
	}
	parts := []string{"cdr:1"}
	if q.StartDate != nil {
		parts = append(parts, "cd_min:"+q.StartDate.Format("1/2/2006"))
	}
	if q.EndDate != nil {
		parts = append(parts, "cd_max:"+q.EndDate.Format("1/2/2006"))
	}
	return strings.Join(parts, ",")
}

// parseResultDate reads the date formats search APIs return. Relative
// dates ("3 days ago") are not parsed.
func parseResultDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"Jan 2, 2006", "2006-01-02", time.RFC3339, "2 Jan 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
