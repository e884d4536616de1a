package pipeline

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/act"
	"github.com/ppiankov/factcheck/internal/action"
	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/judge"
	"github.com/ppiankov/factcheck/internal/llm"
	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/plan"
	"github.com/ppiankov/factcheck/internal/tool"
	"github.com/ppiankov/factcheck/internal/tool/geolocate"
	"github.com/ppiankov/factcheck/internal/tool/kb"
	"github.com/ppiankov/factcheck/internal/tool/manipulation"
	"github.com/ppiankov/factcheck/internal/tool/scrape"
	"github.com/ppiankov/factcheck/internal/tool/search"
	"github.com/ppiankov/factcheck/internal/util"
	"github.com/ppiankov/factcheck/internal/validate"
	"github.com/ppiankov/factcheck/internal/worker"
)

// Shared holds what every checker of a process may share: the model, the
// caches, the rate limiter and read-only corpora. Stateful tools are built
// per checker.
type Shared struct {
	Config    model.Config
	Generator llm.Generator
	Model     *llm.Model
	Cache     cache.Cache
	Limiter   *worker.Limiter
	Scraper   *scrape.Scraper
	Authority *validate.AuthorityClassifier
	Corpus    *kb.Corpus
	Registry  *action.Registry
	Logger    *zap.Logger
}

// NewShared builds the shared resources described by cfg
func NewShared(cfg model.Config, logger *zap.Logger) (*Shared, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	llmCfg := llm.ConfigFromModel(cfg.LLM, cfg.HTTP)
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("LLM provider: %w", err)
	}

	s := &Shared{
		Config:   cfg,
		Cache:    cache.New(cfg.Cache),
		Limiter:  worker.NewLimiter(cfg.HTTP.RateLimit, cfg.HTTP.Burst),
		Registry: action.DefaultRegistry(),
		Logger:   logger,
	}

	s.Model = llm.NewModel(provider, llmCfg, logger.Named("llm"))
	s.Generator = llm.NewCachedGenerator(s.Model, s.Cache, s.Model.Name(), cfg.Cache.TTL)

	if cfg.Search.Scrape {
		opts := []scrape.Option{
			scrape.WithLimiter(s.Limiter),
			scrape.WithCache(s.Cache, cfg.Cache.TTL),
			scrape.WithLogger(logger.Named("scrape")),
		}
		sc := scrape.New(cfg.HTTP, opts...)
		if cfg.HTTP.RespectRobots {
			sc = scrape.New(cfg.HTTP, append(opts,
				scrape.WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, sc.HTTPClient())))...)
		}
		s.Scraper = sc
	}

	if cfg.Tools.AuthorityTagging {
		s.Authority = validate.NewAuthorityClassifier(&cfg.Authority)
	}

	if cfg.Tools.KnowledgeBase != "" {
		corpus, err := kb.LoadCorpus(cfg.Tools.KnowledgeBase)
		if err != nil {
			return nil, err
		}
		s.Corpus = corpus
	}

	return s, nil
}

// NewChecker builds a fact checker with its own tools. Checkers built from
// the same Shared may run concurrently.
func (s *Shared) NewChecker() (*FactChecker, error) {
	cfg := s.Config
	logger := s.Logger

	tools, closers, err := s.tools()
	if err != nil {
		return nil, err
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	set, err := tool.NewSet(tools...)
	if err != nil {
		closeAll()
		return nil, err
	}

	imageActions := cfg.Loop.ImageActions
	if len(imageActions) == 0 && set.Serves(model.ActionGeolocate) {
		imageActions = []string{model.ActionGeolocate}
	}
	validActions := cfg.Loop.ValidActions
	if len(validActions) == 0 {
		validActions = set.Actions()
	}

	planner, err := plan.New(s.Generator, s.Registry, set, plan.Config{
		ValidActions: validActions,
		ImageActions: imageActions,
		ExtraRules:   cfg.Loop.ExtraPlanRules,
		MaxAttempts:  cfg.Loop.MaxPlanAttempts,
		MaxActions:   cfg.Loop.MaxActions,
		AllowEmpty:   cfg.Loop.AllowEmptyPlan,
	}, logger.Named("planner"))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("planner: %w", err)
	}

	j, err := judge.New(s.Generator, judge.Config{
		Classes:     cfg.Loop.Classes,
		ExtraRules:  cfg.Loop.ExtraJudgeRules,
		MaxAttempts: cfg.Loop.MaxJudgeAttempts,
	}, logger.Named("judge"))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("judge: %w", err)
	}

	actor := act.New(set, s.Generator,
		act.WithMaxResultLen(cfg.Loop.MaxResultLen),
		act.WithLogger(logger.Named("actor")))

	variant, err := ParseVariant(cfg.Loop.Variant)
	if err != nil {
		closeAll()
		return nil, err
	}

	opts := []Option{
		WithVariant(variant),
		WithMaxIterations(cfg.Loop.MaxIterations),
		WithMaxResultLen(cfg.Loop.MaxResultLen),
		WithAllActions(cfg.Loop.AllActions),
		WithLogger(logger),
	}
	if cfg.Loop.MinReasoningLen > 0 {
		opts = append(opts, WithMinReasoningLen(cfg.Loop.MinReasoningLen))
	}
	if cfg.Loop.Justify {
		opts = append(opts, WithJustifier(llm.NewSummarizer(s.Generator, cfg.LLM.StrictEvidence, logger.Named("justify"))))
	}

	checker, err := NewFactChecker(planner, actor, j, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	checker.closers = closers
	return checker, nil
}

// tools builds the configured tools. A knowledge base is created per
// checker since it holds the current partition.
func (s *Shared) tools() ([]tool.Tool, []func() error, error) {
	cfg := s.Config
	timeout := cfg.HTTP.Timeout
	var (
		backends []search.Backend
		closers  []func() error
	)

	for _, name := range cfg.Search.Backends {
		switch name {
		case "serper":
			key := cfg.Search.SerperAPIKey
			if key == "" {
				key = os.Getenv("SERPER_API_KEY")
			}
			b, err := search.NewSerper(cfg.Search.SerperURL, key, timeout, s.Limiter)
			if err != nil {
				return nil, nil, err
			}
			backends = append(backends, b)
		case "brave":
			key := cfg.Search.BraveAPIKey
			if key == "" {
				key = os.Getenv("BRAVE_API_KEY")
			}
			b, err := search.NewBrave(cfg.Search.BraveURL, key, timeout, s.Limiter)
			if err != nil {
				return nil, nil, err
			}
			backends = append(backends, b)
		case "kb":
			if s.Corpus == nil {
				return nil, nil, fmt.Errorf("search backend kb needs tools.knowledge_base")
			}
			base := kb.New(s.Corpus, s.Logger.Named("kb"))
			backends = append(backends, base)
			closers = append(closers, base.Close)
		default:
			return nil, nil, fmt.Errorf("unknown search backend %q (want serper, brave or kb)", name)
		}
	}

	var tools []tool.Tool
	if len(backends) > 0 {
		opts := []search.Option{
			search.WithCache(s.Cache, s.Config.Cache.TTL),
			search.WithLimit(cfg.Search.LimitPerSearch),
			search.WithMaxResultLen(cfg.Loop.MaxResultLen),
			search.WithSummaries(cfg.Search.Summarize),
			search.WithLogger(s.Logger.Named("search")),
		}
		if s.Scraper != nil {
			opts = append(opts, search.WithScraper(s.Scraper))
		}
		if s.Authority != nil {
			opts = append(opts, search.WithAuthority(s.Authority))
		}
		searcher, err := search.NewSearcher(backends, opts...)
		if err != nil {
			return nil, nil, err
		}
		tools = append(tools, searcher)
	}

	if cfg.Tools.GeolocatorURL != "" {
		g, err := geolocate.New(cfg.Tools.GeolocatorURL, 2*timeout, s.Limiter)
		if err != nil {
			return nil, nil, err
		}
		tools = append(tools, g)
	}
	if cfg.Tools.ManipulationURL != "" {
		d, err := manipulation.New(cfg.Tools.ManipulationURL, 4*timeout, s.Limiter)
		if err != nil {
			return nil, nil, err
		}
		tools = append(tools, d)
	}

	if len(tools) == 0 {
		return nil, nil, fmt.Errorf("no tools configured")
	}
	return tools, closers, nil
}

// NewFromConfig builds a single fact checker from cfg
func NewFromConfig(cfg model.Config, logger *zap.Logger) (*FactChecker, error) {
	shared, err := NewShared(cfg, logger)
	if err != nil {
		return nil, err
	}
	return shared.NewChecker()
}

// Timeout returns the overall time budget for one claim
func Timeout(cfg model.Config) time.Duration {
	if cfg.Concurrency.ResultTimeout > 0 {
		return cfg.Concurrency.ResultTimeout
	}
	return 30 * time.Minute
}
