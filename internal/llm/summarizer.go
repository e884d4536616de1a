package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/prompt"
)

// Summarizer writes the justification of a finished report
type Summarizer struct {
	generator   Generator
	strict      bool
	maxAttempts int
	logger      *zap.Logger
}

// NewSummarizer creates a justification writer. With strict set, a
// justification citing a URL absent from the evidence is rejected.
func NewSummarizer(generator Generator, strict bool, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		generator:   generator,
		strict:      strict,
		maxAttempts: 3,
		logger:      logger,
	}
}

// Justify generates the justification text for report
func (s *Summarizer) Justify(ctx context.Context, report *model.Report) (string, error) {
	p := prompt.SummarizeReport(report.String())
	allowed := EvidenceURLs(report)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := s.generator.Generate(WithAttempt(ctx, attempt), p)
		if err != nil {
			lastErr = err
			s.logger.Warn("justification attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)

		if s.strict {
			if err := CheckCitations(text, allowed); err != nil {
				lastErr = err
				s.logger.Warn("justification cites unknown source", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
		}
		return text, nil
	}

	return "", fmt.Errorf("justification failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// EvidenceURLs collects every URL that appears in the report's evidence
func EvidenceURLs(report *model.Report) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(text string) {
		for _, u := range ExtractURLs(text) {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}

	for _, e := range report.EvidenceLog {
		if e.Raw != nil {
			add(e.Raw.String())
		}
		if e.Takeaways != nil {
			add(*e.Takeaways)
		}
	}
	return urls
}

// CheckCitations returns ErrCitationLeak if text cites a URL not in allowed
func CheckCitations(text string, allowed []string) error {
	var leaked []string
	for _, u := range ExtractURLs(text) {
		if !contains(allowed, u) {
			leaked = append(leaked, u)
		}
	}
	if len(leaked) > 0 {
		return fmt.Errorf("%w: %s", ErrCitationLeak, strings.Join(leaked, ", "))
	}
	return nil
}

// IsCitationLeak reports whether err is a citation leak
func IsCitationLeak(err error) bool {
	return errors.Is(err, ErrCitationLeak)
}
