package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factcheck/internal/model"
)

// ErrIncomplete is returned when a worker stopped delivering results
// before every claim was checked
var ErrIncomplete = errors.New("batch incomplete: result timeout expired")

// Checker verifies a single claim
type Checker interface {
	Check(ctx context.Context, claim *model.Claim) (*model.Report, error)
}

// Partitioned is implemented by checkers whose tools hold per-claim state,
// such as a knowledge base restricted to the claim's documents
type Partitioned interface {
	SetPartition(claimID string) error
}

// CheckerFactory builds the checker owned by one worker
type CheckerFactory func(worker int) (Checker, error)

// ClaimResult is the outcome of checking one claim
type ClaimResult struct {
	ClaimID  string
	Claim    *model.Claim
	Report   *model.Report
	Worker   int
	Duration time.Duration
	Error    error
}

// GetError returns the error from the check
func (r *ClaimResult) GetError() error {
	return r.Error
}

// claimJob checks one claim with the checker of the executing worker
type claimJob struct {
	claim    *model.Claim
	checkers []Checker
}

// Execute runs the check; a panicking checker fails only its claim
func (j *claimJob) Execute(ctx context.Context, worker int) (result Result) {
	res := &ClaimResult{ClaimID: j.claim.ID, Claim: j.claim, Worker: worker}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Errorf("checker panicked: %v", r)
		}
		res.Duration = time.Since(start)
		result = res
	}()

	checker := j.checkers[worker]
	if p, ok := checker.(Partitioned); ok {
		if err := p.SetPartition(j.claim.ID); err != nil {
			res.Error = fmt.Errorf("set partition: %w", err)
			return res
		}
	}

	res.Report, res.Error = checker.Check(ctx, j.claim)
	return res
}

// BatchProcessor checks many claims concurrently. Each worker owns one
// checker built by the factory.
type BatchProcessor struct {
	factory       CheckerFactory
	workers       int
	queueSize     int
	resultTimeout time.Duration
	progress      func(done, total int, r *ClaimResult)
	logger        *zap.Logger
}

// BatchOption configures a BatchProcessor
type BatchOption func(*BatchProcessor)

// WithQueueSize bounds the number of claims waiting for a worker
func WithQueueSize(n int) BatchOption {
	return func(b *BatchProcessor) { b.queueSize = n }
}

// WithResultTimeout sets how long the collector waits for the next result
func WithResultTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) { b.resultTimeout = d }
}

// WithProgress registers a callback invoked after every result
func WithProgress(fn func(done, total int, r *ClaimResult)) BatchOption {
	return func(b *BatchProcessor) { b.progress = fn }
}

// WithBatchLogger sets the logger
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(b *BatchProcessor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatchProcessor creates a batch processor with the given worker count
func NewBatchProcessor(factory CheckerFactory, workers int, opts ...BatchOption) *BatchProcessor {
	if workers <= 0 {
		workers = 1
	}
	b := &BatchProcessor{
		factory:       factory,
		workers:       workers,
		resultTimeout: 30 * time.Minute,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Process checks every claim and returns the results keyed by claim ID.
// If no result arrives within the result timeout, the gathered results are
// returned with ErrIncomplete.
func (b *BatchProcessor) Process(ctx context.Context, claims []*model.Claim) (map[string]*ClaimResult, error) {
	results := make(map[string]*ClaimResult, len(claims))
	if len(claims) == 0 {
		return results, nil
	}

	seen := make(map[string]bool, len(claims))
	for _, c := range claims {
		c.EnsureID()
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate claim ID %q", c.ID)
		}
		seen[c.ID] = true
	}

	workers := b.workers
	if workers > len(claims) {
		workers = len(claims)
	}
	checkers, err := b.buildCheckers(ctx, workers)
	if err != nil {
		return nil, err
	}
	defer closeCheckers(checkers)

	pool := NewPoolContext(ctx, workers, b.queueSize)
	pool.Start()

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		defer pool.Close()
		for _, c := range claims {
			if !pool.Submit(&claimJob{claim: c, checkers: checkers}) {
				return
			}
		}
	}()

	timer := time.NewTimer(b.resultTimeout)
	defer timer.Stop()

	var collectErr error
collect:
	for len(results) < len(claims) {
		select {
		case r, ok := <-pool.Results():
			if !ok {
				break collect
			}
			cr := r.(*ClaimResult)
			results[cr.ClaimID] = cr
			if cr.Error != nil {
				b.logger.Warn("claim check failed",
					zap.String("claim_id", cr.ClaimID),
					zap.Int("worker", cr.Worker),
					zap.Error(cr.Error))
			}
			if b.progress != nil {
				b.progress(len(results), len(claims), cr)
			}
			timer.Reset(b.resultTimeout)
		case <-timer.C:
			b.logger.Error("no result within timeout, assuming a worker died",
				zap.Duration("timeout", b.resultTimeout),
				zap.Int("collected", len(results)),
				zap.Int("total", len(claims)))
			collectErr = ErrIncomplete
			break collect
		case <-ctx.Done():
			collectErr = ctx.Err()
			break collect
		}
	}

	if collectErr != nil {
		// A dead worker may never return, so only cancel it
		pool.Stop()
		<-submitted
		return results, collectErr
	}

	<-submitted
	pool.Shutdown()
	return results, ctx.Err()
}

// buildCheckers creates one checker per worker concurrently
func (b *BatchProcessor) buildCheckers(ctx context.Context, workers int) ([]Checker, error) {
	checkers := make([]Checker, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := b.factory(i)
			if err != nil {
				return fmt.Errorf("build checker for worker %d: %w", i, err)
			}
			checkers[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeCheckers(checkers)
		return nil, err
	}
	return checkers, nil
}

func closeCheckers(checkers []Checker) {
	for _, c := range checkers {
		if closer, ok := c.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

// claimLine is one line of a claims file
type claimLine struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
	Author string   `json:"author,omitempty"`
	Date   string   `json:"date,omitempty"` // YYYY-MM-DD
	Origin string   `json:"origin,omitempty"`
	Label  string   `json:"label,omitempty"`
}

// ReadClaims reads claims from a JSONL file, one claim per line. Images
// are attached as <image:1>, <image:2>, ... in file order.
func ReadClaims(filePath string) ([]*model.Claim, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return DecodeClaims(file)
}

// DecodeClaims parses JSONL claims from r. Blank lines and lines starting
// with # are skipped.
func DecodeClaims(r io.Reader) ([]*model.Claim, error) {
	var claims []*model.Claim

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var cl claimLine
		if err := json.Unmarshal([]byte(line), &cl); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		claim, err := cl.toClaim()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		claims = append(claims, claim)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}

func (cl claimLine) toClaim() (*model.Claim, error) {
	if strings.TrimSpace(cl.Text) == "" && len(cl.Images) == 0 {
		return nil, fmt.Errorf("claim has neither text nor images")
	}

	claim := &model.Claim{ID: cl.ID, Text: cl.Text}
	for i, ref := range cl.Images {
		claim.Images = append(claim.Images, model.Image{ID: i + 1, Reference: ref})
	}

	if cl.Label != "" {
		label, ok := model.ParseLabel(cl.Label)
		if !ok {
			return nil, fmt.Errorf("unknown label %q", cl.Label)
		}
		claim.Target = label
	}

	if cl.Author != "" || cl.Date != "" || cl.Origin != "" {
		claim.Context = &model.ClaimContext{Author: cl.Author, Origin: cl.Origin}
		if cl.Date != "" {
			date, err := model.ParseDate(cl.Date)
			if err != nil {
				return nil, err
			}
			claim.Context.Date = date
		}
	}

	claim.EnsureID()
	return claim, nil
}
