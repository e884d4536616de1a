// Package kb is a local knowledge base of documents gathered per claim.
// Searches only see the documents of the current claim.
package kb

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"go.uber.org/zap"

	"github.com/ppiankov/factcheck/internal/model"
	"github.com/ppiankov/factcheck/internal/tool/search"
)

// ErrNoPartition is returned when searching before a partition is set
var ErrNoPartition = errors.New("knowledge base partition not set")

// Document is one knowledge base entry
type Document struct {
	ClaimID string `json:"claim_id"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD
}

// Corpus holds every document grouped by claim. It is read-only after
// loading and may be shared.
type Corpus struct {
	docs map[string][]Document
}

// NewCorpus groups docs by claim
func NewCorpus(docs []Document) *Corpus {
	c := &Corpus{docs: make(map[string][]Document)}
	for _, d := range docs {
		c.docs[d.ClaimID] = append(c.docs[d.ClaimID], d)
	}
	return c
}

// LoadCorpus reads a JSONL file with one Document per line
func LoadCorpus(path string) (*Corpus, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer func() { _ = file.Close() }()

	var docs []Document
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if d.ClaimID == "" || d.URL == "" {
			return nil, fmt.Errorf("line %d: claim_id and url are required", lineNum)
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}

	return NewCorpus(docs), nil
}

// Len returns the number of documents for claimID
func (c *Corpus) Len(claimID string) int {
	return len(c.docs[claimID])
}

// KnowledgeBase searches one partition of a corpus at a time. Each worker
// owns its own KnowledgeBase.
type KnowledgeBase struct {
	corpus *Corpus
	logger *zap.Logger

	mu        sync.RWMutex
	partition string
	index     bleve.Index
	docs      map[string]Document
}

// New creates a knowledge base over corpus
func New(corpus *Corpus, logger *zap.Logger) *KnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBase{corpus: corpus, logger: logger}
}

// Name returns the backend name
func (kb *KnowledgeBase) Name() string {
	return "kb"
}

// SetPartition indexes the documents of claimID and makes them the only
// searchable ones
func (kb *KnowledgeBase) SetPartition(claimID string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.index != nil && kb.partition == claimID {
		return nil
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	docs := make(map[string]Document)
	batch := index.NewBatch()
	for i, d := range kb.corpus.docs[claimID] {
		id := strconv.Itoa(i)
		docs[id] = d
		if err := batch.Index(id, map[string]string{"title": d.Title, "text": d.Text}); err != nil {
			_ = index.Close()
			return fmt.Errorf("index document %s: %w", d.URL, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return fmt.Errorf("index partition: %w", err)
	}

	if kb.index != nil {
		_ = kb.index.Close()
	}
	kb.index = index
	kb.docs = docs
	kb.partition = claimID

	kb.logger.Debug("knowledge base partition set",
		zap.String("claim_id", claimID),
		zap.Int("documents", len(docs)))
	return nil
}

// Partition returns the current claim ID
func (kb *KnowledgeBase) Partition() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.partition
}

// Search runs a text query against the current partition
func (kb *KnowledgeBase) Search(ctx context.Context, q search.Query) ([]model.Source, error) {
	if q.Mode == model.ModeReverse || q.Mode == model.ModeImages || q.Text == "" {
		return nil, fmt.Errorf("%w: kb %s", search.ErrUnsupportedMode, q.Mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if kb.index == nil {
		return nil, ErrNoPartition
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	// Over-fetch so date filtering still fills the limit
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q.Text), limit*3, 0, false)
	res, err := kb.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search partition: %w", err)
	}

	var sources []model.Source
	for _, hit := range res.Hits {
		d, ok := kb.docs[hit.ID]
		if !ok {
			continue
		}
		date := parseDate(d.Date)
		if !q.InRange(date) {
			continue
		}
		sources = append(sources, model.Source{
			URL:   d.URL,
			Title: d.Title,
			Text:  d.Text,
			Date:  date,
		})
		if len(sources) >= limit {
			break
		}
	}
	return sources, nil
}

// Close releases the current index
func (kb *KnowledgeBase) Close() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.index == nil {
		return nil
	}
	err := kb.index.Close()
	kb.index = nil
	kb.docs = nil
	kb.partition = ""
	return err
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
