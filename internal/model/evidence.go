package model

import (
	"fmt"
	"strings"
	"time"
)

// Result is the raw output of a tool
type Result interface {
	String() string
	IsUseful() bool
}

// TextResult is a plain text tool output
type TextResult struct {
	Text string
}

func (r TextResult) String() string { return r.Text }

func (r TextResult) IsUseful() bool { return strings.TrimSpace(r.Text) != "" }

// ErrorResult records a failed action in place of a tool output
type ErrorResult struct {
	Action string
	Err    error
}

func (r ErrorResult) String() string {
	return fmt.Sprintf("Error while performing %s: %v", r.Action, r.Err)
}

func (r ErrorResult) IsUseful() bool { return false }

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Laws, statutes, academic papers, official documents
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, tourism sites
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Source is a single document returned by a search backend
type Source struct {
	URL       string        `json:"url"`
	Title     string        `json:"title,omitempty"`
	Text      string        `json:"text,omitempty"` // Snippet or scraped article text
	Date      *time.Time    `json:"date,omitempty"`
	Authority AuthorityTier `json:"authority,omitempty"`
}

func (s Source) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s", s.URL)
	if s.Authority != TierUnknown {
		fmt.Fprintf(&b, " (%s source)", s.Authority)
	}
	if s.Title != "" {
		fmt.Fprintf(&b, "\nTitle: %s", s.Title)
	}
	if s.Date != nil {
		fmt.Fprintf(&b, "\nDate: %s", s.Date.Format("January 02, 2006"))
	}
	if s.Text != "" {
		fmt.Fprintf(&b, "\nContent: %s", s.Text)
	}
	return b.String()
}

// SearchResults is the output of a search action
type SearchResults struct {
	Query   string   `json:"query,omitempty"`
	Sources []Source `json:"sources"`
}

func (r *SearchResults) String() string {
	if len(r.Sources) == 0 {
		return "No search results."
	}
	parts := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n\n")
}

func (r *SearchResults) IsUseful() bool { return len(r.Sources) > 0 }

// Evidence pairs an action with what it produced
type Evidence struct {
	Raw       Result
	Action    Action
	Takeaways *string // nil when the result carried nothing useful
}

// IsUseful reports whether the evidence has takeaways
func (e Evidence) IsUseful() bool {
	return e.Takeaways != nil
}

// Render formats the evidence block, truncating the body to maxLen runes
// (0 means no limit)
func (e Evidence) Render(maxLen int) string {
	name := "unknown"
	if e.Action != nil {
		name = e.Action.Name()
	}

	var body string
	switch {
	case e.Takeaways != nil:
		body = *e.Takeaways
	case e.Raw != nil:
		body = e.Raw.String()
	}

	return fmt.Sprintf("### Evidence from `%s`\n%s", name, Truncate(body, maxLen))
}

func (e Evidence) String() string {
	return e.Render(0)
}

// Truncate cuts s to at most maxLen runes and marks the cut
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + " [...]"
}
