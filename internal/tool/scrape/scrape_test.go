package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/util"
	"github.com/ppiankov/factcheck/internal/worker"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>The Sahara Desert</title><script>var tracking = 1;</script></head>
<body>
<nav>Home | About</nav>
<article>
<h1>The Sahara Desert</h1>
<p>The Sahara is the largest hot desert in the world, covering about nine million square kilometres of North Africa.</p>
<p>It is surpassed in area only by the cold deserts of Antarctica and the Arctic, which are larger overall.</p>
<p>Its climate has alternated between wet and dry over the past few hundred thousand years.</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

func testConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:   5 * time.Second,
		UserAgent: "factcheck-test/1.0",
		MaxBytes:  1 << 20,
	}
}

func TestScraper_Scrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "factcheck-test/1.0" {
			t.Errorf("Expected user agent header, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	s := New(testConfig())
	page, err := s.Scrape(context.Background(), server.URL+"/sahara")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if !strings.Contains(page.Text, "largest hot desert") {
		t.Errorf("Expected article text, got %q", page.Text)
	}
	if strings.Contains(page.Text, "tracking") {
		t.Errorf("Script content leaked into text: %q", page.Text)
	}
}

func TestScraper_Scrape_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := New(testConfig())
	if _, err := s.Scrape(context.Background(), server.URL); err == nil {
		t.Fatal("Expected error for 404")
	}
}

func TestScraper_Scrape_NonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	s := New(testConfig())
	if _, err := s.Scrape(context.Background(), server.URL); err == nil {
		t.Fatal("Expected error for unsupported content type")
	}
}

func TestScraper_Scrape_RobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	cfg := testConfig()
	robots := util.NewRobotsChecker(cfg.UserAgent, server.Client())
	s := New(cfg, WithRobots(robots), WithLimiter(worker.NewLimiter(0, 1)))

	_, err := s.Scrape(context.Background(), server.URL+"/private/page")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("Expected ErrDisallowed, got %v", err)
	}
	if pageHits.Load() != 0 {
		t.Errorf("Disallowed page was fetched")
	}

	if _, err := s.Scrape(context.Background(), server.URL+"/public/page"); err != nil {
		t.Fatalf("Expected allowed page to be scraped: %v", err)
	}
}

func TestScraper_Scrape_Cached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	s := New(testConfig(), WithCache(c, time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := s.Scrape(context.Background(), server.URL+"/a"); err != nil {
			t.Fatalf("Scrape failed: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", hits.Load())
	}
}

func TestExtract_FallsBackToVisibleText(t *testing.T) {
	page := Extract(`<html><head><title>Short</title></head><body><p>Tiny note.</p></body></html>`, "https://example.com/x")

	if !strings.Contains(page.Text, "Tiny note.") {
		t.Errorf("Expected visible text, got %q", page.Text)
	}
	if page.Title != "Short" {
		t.Errorf("Expected title Short, got %q", page.Title)
	}
}

func TestVisibleText_SkipsInvisibleElements(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head><style>p{}</style></head><body>
<script>alert(1)</script><noscript>enable js</noscript><p>Visible</p><footer>foot</footer></body></html>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	text := collapseSpace(VisibleText(doc))
	if text != "Visible" {
		t.Errorf("Expected only visible text, got %q", text)
	}
}
