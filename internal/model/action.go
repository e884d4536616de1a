package model

import (
	"fmt"
	"strings"
	"time"
)

// Action names as they appear in LLM responses
const (
	ActionSearch             = "search"
	ActionGeolocate          = "geolocate"
	ActionDetectManipulation = "detect_manipulation"
)

// Action is a typed request to a tool
type Action interface {
	Name() string   // Registered action name
	Key() string    // Variant plus normalized parameters, basis of equality
	String() string // Canonical call syntax, e.g. search("query")
}

// ImageAction is implemented by actions that operate on a claim image
type ImageAction interface {
	Action
	ImageRef() string
}

// SameAction reports whether two actions are equal
func SameAction(a, b Action) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

// SearchMode selects the kind of search a backend runs
type SearchMode string

const (
	ModeSearch  SearchMode = "search" // Default web search
	ModeNews    SearchMode = "news"
	ModePlaces  SearchMode = "places"
	ModeImages  SearchMode = "images"
	ModeReverse SearchMode = "reverse" // Reverse image search
)

// ParseSearchMode validates a mode string
func ParseSearchMode(s string) (SearchMode, bool) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSearch, ModeNews, ModePlaces, ModeImages, ModeReverse:
		return m, true
	case "":
		return ModeSearch, true
	default:
		return "", false
	}
}

const dateLayout = "2006-01-02"

// Search queries a search backend with text, an image, or both
type Search struct {
	Query     string
	Image     string // Image token, e.g. <image:1>
	Mode      SearchMode
	Limit     int // 0 means backend default
	StartDate *time.Time
	EndDate   *time.Time
}

// NewTextSearch creates a plain web search
func NewTextSearch(query string) *Search {
	return &Search{Query: NormalizeQuery(query), Mode: ModeSearch}
}

// NewImageSearch creates a reverse image search
func NewImageSearch(image string) *Search {
	return &Search{Image: image, Mode: ModeReverse}
}

// NormalizeQuery trims and collapses inner whitespace
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// Validate checks the search is well-formed and fills in the implied mode
func (s *Search) Validate() error {
	s.Query = NormalizeQuery(s.Query)
	if s.Query == "" && s.Image == "" {
		return fmt.Errorf("search needs a query or an image")
	}
	if s.Mode == "" {
		s.Mode = ModeSearch
		if s.Image != "" {
			s.Mode = ModeReverse
		}
	}
	if s.Mode == ModeReverse && s.Image == "" {
		return fmt.Errorf("reverse search needs an image")
	}
	if s.Limit < 0 {
		return fmt.Errorf("search limit must not be negative, got %d", s.Limit)
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return fmt.Errorf("search end date %s is before start date %s",
			s.EndDate.Format(dateLayout), s.StartDate.Format(dateLayout))
	}
	return nil
}

func (s *Search) Name() string { return ActionSearch }

func (s *Search) ImageRef() string { return s.Image }

func (s *Search) Key() string {
	mode := s.Mode
	if mode == "" {
		mode = ModeSearch
		if s.Image != "" {
			mode = ModeReverse
		}
	}
	return fmt.Sprintf("search|q=%s|img=%s|mode=%s|from=%s|to=%s",
		strings.ToLower(NormalizeQuery(s.Query)), s.Image, mode,
		formatDate(s.StartDate), formatDate(s.EndDate))
}

func (s *Search) String() string {
	var args []string
	if s.Query != "" {
		args = append(args, quote(s.Query))
	}
	if s.Image != "" {
		args = append(args, "image="+s.Image)
	}
	if s.Mode != "" && s.Mode != ModeSearch && !(s.Mode == ModeReverse && s.Image != "" && s.Query == "") {
		args = append(args, fmt.Sprintf("mode=%s", quote(string(s.Mode))))
	}
	if s.Limit > 0 {
		args = append(args, fmt.Sprintf("limit=%d", s.Limit))
	}
	if s.StartDate != nil {
		args = append(args, "start_date="+quote(s.StartDate.Format(dateLayout)))
	}
	if s.EndDate != nil {
		args = append(args, "end_date="+quote(s.EndDate.Format(dateLayout)))
	}
	return fmt.Sprintf("%s(%s)", ActionSearch, strings.Join(args, ", "))
}

// DefaultGeolocateTopK is the number of candidate countries reported
const DefaultGeolocateTopK = 10

// Geolocate estimates the country an image was taken in
type Geolocate struct {
	Image string
	TopK  int
}

// NewGeolocate creates a geolocation action with the default top-k
func NewGeolocate(image string) *Geolocate {
	return &Geolocate{Image: image, TopK: DefaultGeolocateTopK}
}

func (g *Geolocate) Name() string     { return ActionGeolocate }
func (g *Geolocate) ImageRef() string { return g.Image }

// Key ignores TopK: two geolocations of the same image are the same action
func (g *Geolocate) Key() string { return "geolocate|" + g.Image }

func (g *Geolocate) String() string {
	return fmt.Sprintf("%s(%s)", ActionGeolocate, g.Image)
}

// DetectManipulation checks an image for signs of editing
type DetectManipulation struct {
	Image string
}

func (d *DetectManipulation) Name() string     { return ActionDetectManipulation }
func (d *DetectManipulation) ImageRef() string { return d.Image }
func (d *DetectManipulation) Key() string      { return "detect_manipulation|" + d.Image }

func (d *DetectManipulation) String() string {
	return fmt.Sprintf("%s(%s)", ActionDetectManipulation, d.Image)
}

// ParseDate parses a YYYY-MM-DD date argument
func ParseDate(s string) (*time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// quote wraps s in double quotes, escaping backslashes and quotes the way
// the call parser unescapes them
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
