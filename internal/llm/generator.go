package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/cache"
	"github.com/ppiankov/factcheck/internal/metrics"
)

// ErrEmptyResponse is returned when a provider answers with no text
var ErrEmptyResponse = errors.New("empty LLM response")

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Model is a Generator backed by a provider. It records call and token
// counts.
type Model struct {
	provider Provider
	config   Config
	logger   *zap.Logger

	calls  atomic.Int64
	tokens atomic.Int64
}

// NewModel wraps a provider
func NewModel(provider Provider, config Config, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// Name returns the provider and model
func (m *Model) Name() string {
	return m.provider.Name() + "/" + m.config.Model
}

// Generate sends one prompt to the provider
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := m.provider.Complete(ctx, CompletionRequest{Prompt: prompt})
	m.calls.Add(1)

	if err != nil {
		metrics.LLMRequests.WithLabelValues(m.provider.Name(), "error").Inc()
		m.logger.Debug("LLM call failed",
			zap.String("provider", m.provider.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	metrics.LLMRequests.WithLabelValues(m.provider.Name(), "ok").Inc()
	metrics.LLMTokens.WithLabelValues(m.provider.Name()).Add(float64(resp.TokensUsed))
	m.tokens.Add(int64(resp.TokensUsed))

	m.logger.Debug("LLM call",
		zap.String("provider", m.provider.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", time.Since(start)))

	if resp.Text == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}

// Usage returns the number of calls and tokens so far
func (m *Model) Usage() (calls, tokens int64) {
	return m.calls.Load(), m.tokens.Load()
}

type attemptKey struct{}

// WithAttempt marks ctx with the attempt number of a retried generation.
// A CachedGenerator answers only the first attempt from its cache, so a
// caller that rejected a response gets a fresh one on the next attempt.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// Attempt returns the attempt number stored in ctx, 1 when unset
func Attempt(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}

// CachedGenerator memoizes responses by prompt
type CachedGenerator struct {
	next      Generator
	cache     cache.Cache
	namespace string
	ttl       time.Duration
}

// NewCachedGenerator wraps next with c; a nil cache returns next unchanged
func NewCachedGenerator(next Generator, c cache.Cache, namespace string, ttl time.Duration) Generator {
	if c == nil {
		return next
	}
	return &CachedGenerator{
		next:      next,
		cache:     c,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Generate returns a cached response or asks the wrapped generator.
// Retries (see WithAttempt) skip the lookup and replace the cached entry.
// Errors are never cached.
func (g *CachedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key := cache.Key("llm", g.namespace, prompt)
	if Attempt(ctx) <= 1 {
		if data, ok := g.cache.Get(key); ok {
			metrics.LLMRequests.WithLabelValues(g.namespace, "cached").Inc()
			return string(data), nil
		}
	}

	text, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	_ = g.cache.Set(key, []byte(text), g.ttl)
	return text, nil
}
