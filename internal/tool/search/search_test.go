package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool"
	"github.com/ppiankov/factcheck/internal/tool/scrape"
	"github.com/ppiankov/factcheck/internal/validate"
)

type fakeBackend struct {
	name    string
	sources []model.Source
	err     error
	calls   atomic.Int32
	last    Query
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Search(ctx context.Context, q Query) ([]model.Source, error) {
	f.calls.Add(1)
	f.last = q
	return f.sources, f.err
}

type partitionedBackend struct {
	fakeBackend
	partition string
}

func (p *partitionedBackend) SetPartition(claimID string) error {
	p.partition = claimID
	return nil
}

type fakeScraper struct{}

func (fakeScraper) Scrape(ctx context.Context, rawURL string) (*scrape.Page, error) {
	if strings.Contains(rawURL, "broken") {
		return nil, errors.New("unreachable")
	}
	return &scrape.Page{URL: rawURL, Text: "Full article text that is longer than any snippet " + rawURL}, nil
}

func TestSerper_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Expected /search, got %s", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "key" {
			t.Errorf("Missing API key header")
		}
		var body serperRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Q != "largest desert" || body.Num != 3 {
			t.Errorf("Unexpected request body: %+v", body)
		}
		if body.TBS != "cdr:1,cd_max:12/31/2020" {
			t.Errorf("Unexpected date restriction: %q", body.TBS)
		}
		_, _ = w.Write([]byte(`{"organic": [
			{"title": "Antarctica", "link": "https://example.org/antarctica", "snippet": "Largest desert overall.", "date": "Mar 3, 2019"},
			{"title": "Too new", "link": "https://example.org/new", "snippet": "x", "date": "Jan 5, 2022"},
			{"title": "No link"}
		]}`))
	}))
	defer server.Close()

	backend, err := NewSerper(server.URL, "key", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewSerper failed: %v", err)
	}

	end := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	sources, err := backend.Search(context.Background(), Query{Text: "largest desert", Mode: model.ModeSearch, Limit: 3, EndDate: &end})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(sources) != 1 || sources[0].URL != "https://example.org/antarctica" {
		t.Fatalf("Unexpected sources: %+v", sources)
	}
	if sources[0].Date == nil || sources[0].Date.Year() != 2019 {
		t.Errorf("Expected parsed date, got %v", sources[0].Date)
	}
}

func TestSerper_ReverseSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lens" {
			t.Errorf("Expected /lens, got %s", r.URL.Path)
		}
		var body serperRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.URL != "https://img.example/photo.jpg" {
			t.Errorf("Expected image URL, got %q", body.URL)
		}
		_, _ = w.Write([]byte(`{"visual_matches": [{"title": "Photo", "link": "https://news.example/photo"}]}`))
	}))
	defer server.Close()

	backend, _ := NewSerper(server.URL, "key", 5*time.Second, nil)
	sources, err := backend.Search(context.Background(), Query{ImageURL: "https://img.example/photo.jpg", Mode: model.ModeReverse})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(sources) != 1 || sources[0].URL != "https://news.example/photo" {
		t.Errorf("Unexpected sources: %+v", sources)
	}
}

func TestSerper_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "invalid key"}`))
	}))
	defer server.Close()

	backend, _ := NewSerper(server.URL, "key", 5*time.Second, nil)
	if _, err := backend.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatal("Expected error")
	}
}

func TestSerper_RequiresKey(t *testing.T) {
	if _, err := NewSerper("", "", 0, nil); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestBrave_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web/search" {
			t.Errorf("Expected /web/search, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Subscription-Token") != "key" {
			t.Errorf("Missing subscription token")
		}
		if r.URL.Query().Get("q") != "sahara size" || r.URL.Query().Get("count") != "2" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"web": {"results": [
			{"title": "Sahara", "url": "https://example.org/sahara", "description": "The <strong>Sahara</strong> covers 9M km2."}
		]}}`))
	}))
	defer server.Close()

	backend, err := NewBrave(server.URL, "key", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewBrave failed: %v", err)
	}

	sources, err := backend.Search(context.Background(), Query{Text: "sahara size", Mode: model.ModeSearch, Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Text != "The Sahara covers 9M km2." {
		t.Errorf("Unexpected sources: %+v", sources)
	}

	if _, err := backend.Search(context.Background(), Query{ImageURL: "https://x", Mode: model.ModeReverse}); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("Expected ErrUnsupportedMode, got %v", err)
	}
}

func TestSearcher_MergesAndDedupes(t *testing.T) {
	a := &fakeBackend{name: "a", sources: []model.Source{
		{URL: "https://en.wikipedia.org/wiki/Sahara", Text: "snippet a1"},
		{URL: "https://someblog.net/sahara", Text: "snippet a2"},
	}}
	b := &fakeBackend{name: "b", sources: []model.Source{
		{URL: "https://en.wikipedia.org/wiki/Sahara", Text: "dup"},
		{URL: "https://c.org/3", Text: "snippet b"},
	}}

	s, err := NewSearcher([]Backend{a, b},
		WithLimit(5),
		WithAuthority(validate.NewAuthorityClassifier(nil)))
	if err != nil {
		t.Fatalf("NewSearcher failed: %v", err)
	}

	result, err := s.Perform(context.Background(), model.NewTextSearch("Sahara size"), model.NewClaim("x"))
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}

	res := result.(*model.SearchResults)
	if len(res.Sources) != 3 {
		t.Fatalf("Expected 3 merged sources, got %d", len(res.Sources))
	}
	if res.Sources[0].Text != "snippet a1" {
		t.Errorf("Expected first backend to win duplicates, got %q", res.Sources[0].Text)
	}
	if res.Sources[0].Authority != model.TierSecondary {
		t.Errorf("Expected authority tagging, got %v", res.Sources[0].Authority)
	}
	if a.last.Limit != 5 || a.last.Mode != model.ModeSearch {
		t.Errorf("Unexpected query passed to backend: %+v", a.last)
	}
}

func TestSearcher_LimitAndTruncate(t *testing.T) {
	a := &fakeBackend{name: "a", sources: []model.Source{
		{URL: "https://a.org/1", Text: strings.Repeat("x", 50)},
		{URL: "https://a.org/2", Text: "y"},
	}}

	s, _ := NewSearcher([]Backend{a}, WithMaxResultLen(10))
	search := model.NewTextSearch("q")
	search.Limit = 1

	result, err := s.Perform(context.Background(), search, nil)
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	res := result.(*model.SearchResults)
	if len(res.Sources) != 1 {
		t.Fatalf("Expected limit 1, got %d", len(res.Sources))
	}
	if res.Sources[0].Text != strings.Repeat("x", 10)+" [...]" {
		t.Errorf("Expected truncated text, got %q", res.Sources[0].Text)
	}
}

func TestSearcher_BackendFailures(t *testing.T) {
	failing := &fakeBackend{name: "down", err: errors.New("503")}
	working := &fakeBackend{name: "up", sources: []model.Source{{URL: "https://a.org"}}}

	s, _ := NewSearcher([]Backend{failing, working})
	if _, err := s.Perform(context.Background(), model.NewTextSearch("q"), nil); err != nil {
		t.Fatalf("Expected partial failure to succeed, got %v", err)
	}

	s, _ = NewSearcher([]Backend{failing})
	if _, err := s.Perform(context.Background(), model.NewTextSearch("q"), nil); err == nil {
		t.Fatal("Expected error when every backend fails")
	}
}

func TestSearcher_NoResultsIsNotAnError(t *testing.T) {
	empty := &fakeBackend{name: "empty"}
	s, _ := NewSearcher([]Backend{empty})

	result, err := s.Perform(context.Background(), model.NewTextSearch("q"), nil)
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	if result.IsUseful() {
		t.Error("Expected empty result to be not useful")
	}
	if result.String() != "No search results." {
		t.Errorf("Unexpected rendering: %q", result.String())
	}
}

func TestSearcher_Cache(t *testing.T) {
	web := &fakeBackend{name: "web", sources: []model.Source{{URL: "https://a.org"}}}
	local := &partitionedBackend{fakeBackend: fakeBackend{name: "kb", sources: []model.Source{{URL: "https://b.org"}}}}

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	s, _ := NewSearcher([]Backend{web, local}, WithCache(c, time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := s.Perform(context.Background(), model.NewTextSearch("q"), nil); err != nil {
			t.Fatalf("Perform failed: %v", err)
		}
	}
	if web.calls.Load() != 1 {
		t.Errorf("Expected cached web backend to be called once, got %d", web.calls.Load())
	}
	if local.calls.Load() != 3 {
		t.Errorf("Expected partitioned backend to bypass the cache, got %d calls", local.calls.Load())
	}

	if err := s.SetPartition("claim-7"); err != nil {
		t.Fatalf("SetPartition failed: %v", err)
	}
	if local.partition != "claim-7" {
		t.Errorf("Expected partition to propagate, got %q", local.partition)
	}
}

func TestSearcher_Scrape(t *testing.T) {
	a := &fakeBackend{name: "a", sources: []model.Source{
		{URL: "https://a.org/ok", Text: "short"},
		{URL: "https://a.org/broken", Text: "kept snippet"},
	}}
	s, _ := NewSearcher([]Backend{a}, WithScraper(fakeScraper{}))

	result, err := s.Perform(context.Background(), model.NewTextSearch("q"), nil)
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	res := result.(*model.SearchResults)
	if !strings.HasPrefix(res.Sources[0].Text, "Full article text") {
		t.Errorf("Expected scraped text, got %q", res.Sources[0].Text)
	}
	if res.Sources[1].Text != "kept snippet" {
		t.Errorf("Expected snippet to survive scrape failure, got %q", res.Sources[1].Text)
	}
}

func TestSearcher_ReverseSearchResolvesImage(t *testing.T) {
	a := &fakeBackend{name: "a", sources: []model.Source{{URL: "https://a.org"}}}
	s, _ := NewSearcher([]Backend{a})

	claim := model.NewClaim("<image:1> shows a flood in Paris",
		model.Image{ID: 1, Reference: "https://img.example/flood.jpg"})

	if _, err := s.Perform(context.Background(), model.NewImageSearch("<image:1>"), claim); err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	if a.last.ImageURL != "https://img.example/flood.jpg" || a.last.Mode != model.ModeReverse {
		t.Errorf("Unexpected query: %+v", a.last)
	}

	local := model.NewClaim("<image:1>", model.Image{ID: 1, Reference: "/tmp/flood.jpg"})
	if _, err := s.Perform(context.Background(), model.NewImageSearch("<image:1>"), local); err == nil {
		t.Error("Expected error for a local image path")
	}

	if _, err := s.Perform(context.Background(), model.NewImageSearch("<image:2>"), claim); !errors.Is(err, tool.ErrUnresolvedImage) {
		t.Errorf("Expected ErrUnresolvedImage, got %v", err)
	}
}

func TestSearcher_RejectsOtherActions(t *testing.T) {
	s, _ := NewSearcher([]Backend{&fakeBackend{name: "a"}})
	if _, err := s.Perform(context.Background(), model.NewGeolocate("<image:1>"), nil); !errors.Is(err, tool.ErrWrongAction) {
		t.Errorf("Expected ErrWrongAction, got %v", err)
	}
}

func TestSearcher_SummaryPrompt(t *testing.T) {
	report := model.NewReport(model.NewClaim("The Sahara is the largest desert."), nil)
	result := &model.SearchResults{Sources: []model.Source{{URL: "https://a.org", Text: "t"}}}

	s, _ := NewSearcher([]Backend{&fakeBackend{name: "a"}})
	p := s.SummaryPrompt(model.NewTextSearch("q"), result, report)
	if !strings.Contains(p, "https://a.org") || !strings.Contains(p, "largest desert") {
		t.Errorf("Expected result and report in prompt: %s", p)
	}

	s, _ = NewSearcher([]Backend{&fakeBackend{name: "a"}}, WithSummaries(false))
	if s.SummaryPrompt(model.NewTextSearch("q"), result, report) != "" {
		t.Error("Expected empty prompt with summaries disabled")
	}
}
