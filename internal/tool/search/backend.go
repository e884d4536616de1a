// Package search implements the search action over web search APIs and
// the local knowledge base.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/factcheck/internal/model"
)

// ErrUnsupportedMode is returned by a backend that cannot serve a search mode
var ErrUnsupportedMode = errors.New("search mode not supported by backend")

// Query is a search action with its image token resolved
type Query struct {
	Text      string
	ImageURL  string
	Mode      model.SearchMode
	Limit     int
	StartDate *time.Time
	EndDate   *time.Time
}

// Backend is one search platform
type Backend interface {
	Name() string
	Search(ctx context.Context, q Query) ([]model.Source, error)
}

// InRange reports whether date lies within the query's date window.
// Undated sources are kept.
func (q Query) InRange(date *time.Time) bool {
	if date == nil {
		return true
	}
	if q.StartDate != nil && date.Before(*q.StartDate) {
		return false
	}
	if q.EndDate != nil && date.After(q.EndDate.Add(24*time.Hour-time.Nanosecond)) {
		return false
	}
	return true
}
