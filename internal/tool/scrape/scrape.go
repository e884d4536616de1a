// Package scrape fetches web pages and extracts their readable text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/util"
	"github.com/ppiankov/factcheck/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids fetching a page
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Page is the readable content of a fetched URL
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Scraper fetches HTML pages and extracts the article text
type Scraper struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// Option configures a Scraper
type Option func(*Scraper)

// WithRobots enforces robots.txt through checker
func WithRobots(checker *util.RobotsChecker) Option {
	return func(s *Scraper) { s.robots = checker }
}

// WithLimiter rate limits requests per host
func WithLimiter(l *worker.Limiter) Option {
	return func(s *Scraper) { s.limiter = l }
}

// WithCache memoizes extracted pages
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Scraper) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// New creates a Scraper from the HTTP settings
func New(cfg model.HTTPConfig, opts ...Option) *Scraper {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}

	transport := util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	s := &Scraper{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HTTPClient returns the client used for page requests
func (s *Scraper) HTTPClient() *http.Client {
	return s.httpClient
}

// Scrape fetches rawURL and returns its readable text
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	key := cache.Key("scrape", rawURL)
	var cached Page
	if cache.GetJSON(s.cache, key, &cached) {
		return &cached, nil
	}

	var crawlDelay time.Duration
	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		crawlDelay = delay
	}

	if s.limiter != nil {
		if err := s.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, err
		}
	}

	body, finalURL, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page := Extract(body, finalURL)
	if page.Text == "" {
		return nil, fmt.Errorf("no readable text at %s", rawURL)
	}

	if err := cache.SetJSON(s.cache, key, page, s.cacheTTL); err != nil {
		s.logger.Debug("cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
	return page, nil
}

// fetch retrieves the HTML of rawURL and the URL it resolved to
func (s *Scraper) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return "", "", fmt.Errorf("unsupported content type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	return string(body), resp.Request.URL.String(), nil
}

// Extract returns the article text of an HTML document. Readability is
// tried first; the visible text of the page is the fallback.
func Extract(htmlContent, pageURL string) *Page {
	page := &Page{URL: pageURL}

	parsed, err := url.Parse(pageURL)
	if err == nil {
		article, rerr := readability.FromReader(strings.NewReader(htmlContent), parsed)
		if rerr == nil {
			page.Title = strings.TrimSpace(article.Title)
			page.Text = collapseSpace(article.TextContent)
		}
	}

	if page.Text == "" {
		doc, perr := html.Parse(strings.NewReader(htmlContent))
		if perr == nil {
			page.Text = collapseSpace(VisibleText(doc))
			if page.Title == "" {
				page.Title = findTitle(doc)
			}
		}
	}

	return page
}

// VisibleText concatenates the text nodes of n, skipping non-content elements
func VisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
