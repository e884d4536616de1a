package model

import "time"

// Config is the full factcheck configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Loop        LoopConfig        `yaml:"loop"`
	Search      SearchConfig      `yaml:"search"`
	Tools       ToolsConfig       `yaml:"tools"`
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
	Authority   AuthorityConfig   `yaml:"authority"`
}

// LLMConfig selects and tunes the language model backend
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key,omitempty"` // Prefer OPENAI_API_KEY / ANTHROPIC_API_KEY
	BaseURL     string  `yaml:"base_url,omitempty"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	// StrictEvidence rejects justifications that cite URLs not found in the evidence
	StrictEvidence bool `yaml:"strict_evidence"`
}

// LoopConfig bounds the plan/act/judge loop
type LoopConfig struct {
	Variant            string   `yaml:"variant"` // dynamic, naive, no_evidence
	MaxIterations      int      `yaml:"max_iterations"`
	MaxPlanAttempts    int      `yaml:"max_plan_attempts"`
	MaxJudgeAttempts   int      `yaml:"max_judge_attempts"`
	MaxActions         int      `yaml:"max_actions"`    // Per plan
	MaxResultLen       int      `yaml:"max_result_len"` // Runes per evidence body
	MinReasoningLen    int      `yaml:"min_reasoning_len"`
	AllActions         bool     `yaml:"all_actions"`             // Ask the planner not to be frugal
	AllowEmptyPlan     bool     `yaml:"allow_empty_plan"`        // Disable the fallback search
	ValidActions       []string `yaml:"valid_actions,omitempty"` // Empty means every action a configured tool serves
	ImageActions       []string `yaml:"image_actions,omitempty"` // Empty means geolocate when a geolocator is configured
	Classes            []Label  `yaml:"classes"`
	ExtraPlanRules     string   `yaml:"extra_plan_rules,omitempty"`
	ExtraJudgeRules    string   `yaml:"extra_judge_rules,omitempty"`
	Justify            bool     `yaml:"justify"`
	MergeCherryPicking bool     `yaml:"merge_cherrypicking"`
}

// SearchConfig configures the search tool
type SearchConfig struct {
	Backends       []string `yaml:"backends"` // serper, brave, kb
	LimitPerSearch int      `yaml:"limit_per_search"`
	SerperURL      string   `yaml:"serper_url"`
	SerperAPIKey   string   `yaml:"serper_api_key,omitempty"` // Prefer SERPER_API_KEY
	BraveURL       string   `yaml:"brave_url"`
	BraveAPIKey    string   `yaml:"brave_api_key,omitempty"` // Prefer BRAVE_API_KEY
	Scrape         bool     `yaml:"scrape"`                  // Fetch full article text for each hit
	Summarize      bool     `yaml:"summarize"`
}

// ToolsConfig points at the remote models and local corpora
type ToolsConfig struct {
	GeolocatorURL    string `yaml:"geolocator_url,omitempty"`
	ManipulationURL  string `yaml:"manipulation_url,omitempty"`
	KnowledgeBase    string `yaml:"knowledge_base,omitempty"` // JSONL corpus
	AuthorityTagging bool   `yaml:"authority_tagging"`
}

// HTTPConfig tunes outbound requests
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	MaxBytes      int64         `yaml:"max_bytes"`
	RateLimit     float64       `yaml:"rate_limit"` // Requests per second per host
	Burst         int           `yaml:"burst"`
	RespectRobots bool          `yaml:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty"`
	NoProxy       string        `yaml:"no_proxy,omitempty"`
}

// CacheConfig controls response caching
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Dir     string        `yaml:"dir,omitempty"` // Disk layer, empty disables it
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	ResultTimeout time.Duration `yaml:"result_timeout"`
}

// OutputConfig controls report export
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Markdown    bool   `yaml:"markdown"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// AuthorityConfig classifies search result URLs into authority tiers
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty"` // host -> tier
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty"`
}

// PathPattern assigns a tier to URLs whose path matches Pattern
type PathPattern struct {
	Pattern string `yaml:"pattern"`
	Tier    string `yaml:"tier"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Timeout:        60,
			MaxTokens:      2048,
			Temperature:    0.01,
			StrictEvidence: true,
		},
		Loop: LoopConfig{
			Variant:          "dynamic",
			MaxIterations:    5,
			MaxPlanAttempts:  5,
			MaxJudgeAttempts: 5,
			MaxActions:       5,
			MaxResultLen:     1200,
			MinReasoningLen:  32,
			Classes: []Label{
				LabelSupported,
				LabelRefuted,
				LabelConflicting,
			},
			Justify: true,
		},
		Search: SearchConfig{
			Backends:       []string{"serper"},
			LimitPerSearch: 5,
			SerperURL:      "https://google.serper.dev",
			BraveURL:       "https://api.search.brave.com/res/v1",
			Summarize:      true,
		},
		Tools: ToolsConfig{
			AuthorityTagging: true,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "factcheck/0.1 (+https://github.com/ppiankov/factcheck)",
			MaxBytes:      2_000_000,
			RateLimit:     2,
			Burst:         4,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       1,
			QueueSize:     64,
			ResultTimeout: 30 * time.Minute,
		},
		Output: OutputConfig{
			Dir: "out",
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"doi.org",
				"legislation.gov.uk",
				"europa.eu",
				"who.int",
				"un.org",
				"arxiv.org",
				"ncbi.nlm.nih.gov",
			},
			SecondaryDomains: []string{
				"wikipedia.org",
				"britannica.com",
				"reuters.com",
				"apnews.com",
				"bbc.co.uk",
				"bbc.com",
				"snopes.com",
				"politifact.com",
				"factcheck.org",
				"fullfact.org",
			},
			PathPatterns: []PathPattern{
				{Pattern: `(?i)/(blog|blogs)/`, Tier: "tertiary"},
				{Pattern: `(?i)\.pdf$`, Tier: "secondary"},
			},
		},
	}
}
