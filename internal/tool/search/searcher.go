package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
	"github.com/ppiankov/factcheck/internal/tool"
	"github.com/ppiankov/factcheck/internal/tool/scrape"
	"github.com/ppiankov/factcheck/internal/validate"
)

// DefaultLimit is the number of results kept per search
const DefaultLimit = 5

// Scraper fetches the full text behind a result URL
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*scrape.Page, error)
}

// Searcher is the tool behind the search action. It queries every backend,
// merges their results by URL and optionally enriches them.
type Searcher struct {
	backends     []Backend
	cache        cache.Cache
	cacheTTL     time.Duration
	limit        int
	maxResultLen int
	scraper      Scraper
	authority    *validate.AuthorityClassifier
	summarize    bool
	logger       *zap.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithCache memoizes backend results. Partitioned backends are never cached.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Searcher) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithLimit sets the default number of results per search
func WithLimit(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithMaxResultLen caps the text kept per source
func WithMaxResultLen(n int) Option {
	return func(s *Searcher) { s.maxResultLen = n }
}

// WithScraper replaces result snippets by the scraped page text
func WithScraper(sc Scraper) Option {
	return func(s *Searcher) { s.scraper = sc }
}

// WithAuthority tags each source with its authority tier
func WithAuthority(a *validate.AuthorityClassifier) Option {
	return func(s *Searcher) { s.authority = a }
}

// WithSummaries asks the LLM to condense each result set
func WithSummaries(enabled bool) Option {
	return func(s *Searcher) { s.summarize = enabled }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher creates the search tool over backends, queried in order
func NewSearcher(backends []Backend, opts ...Option) (*Searcher, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("search needs at least one backend")
	}
	s := &Searcher{
		backends:  backends,
		limit:     DefaultLimit,
		summarize: true,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the tool name
func (s *Searcher) Name() string {
	return "searcher"
}

// Actions returns the served actions
func (s *Searcher) Actions() []string {
	return []string{model.ActionSearch}
}

// SetPartition scopes partitioned backends to claimID
func (s *Searcher) SetPartition(claimID string) error {
	var errs []error
	for _, b := range s.backends {
		if p, ok := b.(tool.Partitioned); ok {
			if err := p.SetPartition(claimID); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Perform runs a search action
func (s *Searcher) Perform(ctx context.Context, action model.Action, claim *model.Claim) (model.Result, error) {
	act, ok := action.(*model.Search)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tool.ErrWrongAction, action.Name())
	}

	q, err := s.query(act, claim)
	if err != nil {
		return nil, err
	}

	var (
		sources []model.Source
		seen    = make(map[string]bool)
		errs    []error
		served  int
	)
	for _, b := range s.backends {
		found, err := s.searchBackend(ctx, b, act, q)
		if errors.Is(err, ErrUnsupportedMode) {
			s.logger.Debug("backend skipped", zap.String("backend", b.Name()), zap.Error(err))
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("search backend failed", zap.String("backend", b.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		served++

		for _, src := range found {
			if seen[src.URL] || len(sources) >= q.Limit {
				continue
			}
			seen[src.URL] = true
			sources = append(sources, src)
		}
	}

	if served == 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("%w: no backend serves mode %s", ErrUnsupportedMode, q.Mode)
		}
		return nil, errors.Join(errs...)
	}

	s.enrich(ctx, sources)

	return &model.SearchResults{Query: act.String(), Sources: sources}, nil
}

// SummaryPrompt condenses search results unless summaries are disabled
func (s *Searcher) SummaryPrompt(action model.Action, result model.Result, report *model.Report) string {
	if !s.summarize {
		return ""
	}
	return prompt.SummarizeResult(action.String(), result.String(), report.String())
}

func (s *Searcher) query(act *model.Search, claim *model.Claim) (Query, error) {
	q := Query{
		Text:      act.Query,
		Mode:      act.Mode,
		Limit:     act.Limit,
		StartDate: act.StartDate,
		EndDate:   act.EndDate,
	}
	if q.Limit <= 0 {
		q.Limit = s.limit
	}
	if q.Mode == "" {
		q.Mode = model.ModeSearch
	}

	if act.Image != "" {
		ref, err := tool.ImageReference(act.Image, claim)
		if err != nil {
			return q, err
		}
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			return q, fmt.Errorf("reverse search needs a public image URL, got %s", ref)
		}
		q.ImageURL = ref
	}
	return q, nil
}

func (s *Searcher) searchBackend(ctx context.Context, b Backend, act *model.Search, q Query) ([]model.Source, error) {
	_, partitioned := b.(tool.Partitioned)
	useCache := s.cache != nil && !partitioned

	key := cache.Key("search", b.Name(), act.Key(), q.ImageURL, strconv.Itoa(q.Limit))
	if useCache {
		var cached []model.Source
		if cache.GetJSON(s.cache, key, &cached) {
			return cached, nil
		}
	}

	found, err := b.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := cache.SetJSON(s.cache, key, found, s.cacheTTL); err != nil {
			s.logger.Debug("cache write failed", zap.Error(err))
		}
	}
	return found, nil
}

// enrich scrapes, truncates and tags the sources in place
func (s *Searcher) enrich(ctx context.Context, sources []model.Source) {
	for i := range sources {
		if s.scraper != nil {
			page, err := s.scraper.Scrape(ctx, sources[i].URL)
			if err != nil {
				s.logger.Debug("scrape failed", zap.String("url", sources[i].URL), zap.Error(err))
			} else if len(page.Text) > len(sources[i].Text) {
				sources[i].Text = page.Text
				if sources[i].Title == "" {
					sources[i].Title = page.Title
				}
			}
		}
		sources[i].Text = model.Truncate(sources[i].Text, s.maxResultLen)
	}

	if s.authority != nil {
		s.authority.Tag(sources)
	}
}
