package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/factcheck/internal/model"
)

var imageTokenPattern = regexp.MustCompile(`^<image:\d+>$`)

// IsImageToken reports whether s is an image reference like <image:1>
func IsImageToken(s string) bool {
	return imageTokenPattern.MatchString(strings.TrimSpace(s))
}

// SearchDescriptor documents and builds the search action
func SearchDescriptor() Descriptor {
	return Descriptor{
		Name: model.ActionSearch,
		Description: "Run a web search and retrieve the top results. Pass an image reference " +
			"to run a reverse image search that finds where else the image appears online.",
		HowTo: "Use short, precise queries. Vary the wording across searches. " +
			"Set mode to \"news\" for recent events, \"places\" for locations or \"images\" for image results. " +
			"Add start_date and end_date (YYYY-MM-DD) to restrict the time range.",
		Format: `search("your query"), search("your query", mode="news", limit=5), search(image=<image:k>)`,
		Build:  buildSearch,
	}
}

// GeolocateDescriptor documents and builds the geolocate action
func GeolocateDescriptor() Descriptor {
	return Descriptor{
		Name:        model.ActionGeolocate,
		Description: "Estimate the country where an image was taken. Returns the most likely countries with confidence scores.",
		HowTo:       "Use it to verify claims about where a photo was taken.",
		Format:      "geolocate(<image:k>)",
		Multimodal:  true,
		Build:       buildGeolocate,
	}
}

// DetectManipulationDescriptor documents and builds the detect_manipulation action
func DetectManipulationDescriptor() Descriptor {
	return Descriptor{
		Name:        model.ActionDetectManipulation,
		Description: "Check an image for signs of digital editing such as splicing or retouching.",
		HowTo:       "Use it when the authenticity of an image is in question. The score is an estimate, not proof.",
		Format:      "detect_manipulation(<image:k>)",
		Multimodal:  true,
		Limited:     true,
		Build:       buildDetectManipulation,
	}
}

// searchShape classifies which slots a search call filled
type searchShape int

const (
	shapeNone searchShape = iota
	shapeText
	shapeImage
	shapeBoth
)

func classifySearch(query, image string) searchShape {
	switch {
	case query != "" && image != "":
		return shapeBoth
	case image != "":
		return shapeImage
	case query != "":
		return shapeText
	default:
		return shapeNone
	}
}

// buildSearch fills the query and image slots, then reconciles them.
// Image-shaped tokens always go to the image slot. Any search with an
// image becomes a reverse search; a text-only search keeps its mode.
func buildSearch(args []string, kwargs map[string]string) (model.Action, error) {
	var query, image string

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		switch {
		case IsImageToken(arg) && image == "":
			image = arg
		case !IsImageToken(arg) && query == "":
			query = arg
		}
	}
	if v, ok := kwargs["query"]; ok && query == "" {
		query = v
	}
	if v, ok := kwargs["image"]; ok && image == "" {
		if !IsImageToken(v) {
			return nil, fmt.Errorf("image must be an image reference, got %q", v)
		}
		image = strings.TrimSpace(v)
	}

	s := &model.Search{Query: model.NormalizeQuery(query)}

	if v, ok := kwargs["limit"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("limit must be an integer, got %q", v)
		}
		s.Limit = n
	}

	switch classifySearch(s.Query, image) {
	case shapeBoth, shapeImage:
		s.Image = image
		s.Mode = model.ModeReverse
	case shapeText:
		mode, ok := model.ParseSearchMode(kwargs["mode"])
		if !ok {
			return nil, fmt.Errorf("unknown search mode %q", kwargs["mode"])
		}
		s.Mode = mode
		if v, ok := kwargs["start_date"]; ok {
			d, err := model.ParseDate(v)
			if err != nil {
				return nil, err
			}
			s.StartDate = d
		}
		if v, ok := kwargs["end_date"]; ok {
			d, err := model.ParseDate(v)
			if err != nil {
				return nil, err
			}
			s.EndDate = d
		}
	default:
		return nil, fmt.Errorf("search needs a query or an image")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildGeolocate(args []string, kwargs map[string]string) (model.Action, error) {
	image, err := imageArg(args, kwargs)
	if err != nil {
		return nil, err
	}

	g := model.NewGeolocate(image)
	if v, ok := kwargs["top_k"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("top_k must be a positive integer, got %q", v)
		}
		g.TopK = n
	}
	return g, nil
}

func buildDetectManipulation(args []string, kwargs map[string]string) (model.Action, error) {
	image, err := imageArg(args, kwargs)
	if err != nil {
		return nil, err
	}
	return &model.DetectManipulation{Image: image}, nil
}

// imageArg finds the image reference in the positional or keyword args
func imageArg(args []string, kwargs map[string]string) (string, error) {
	if v, ok := kwargs["image"]; ok {
		args = append([]string{v}, args...)
	}
	for _, arg := range args {
		if IsImageToken(arg) {
			return strings.TrimSpace(arg), nil
		}
	}
	return "", fmt.Errorf("expected an image reference like <image:1>")
}

// Fallback returns the default action for a claim: a reverse image search
// when the claim text references an image, a text search otherwise
func Fallback(claim *model.Claim) model.Action {
	if claim == nil {
		return nil
	}
	if refs := claim.ImageRefs(); len(refs) > 0 {
		return model.NewImageSearch(refs[0])
	}
	if q := model.NormalizeQuery(claim.Text); q != "" {
		return model.NewTextSearch(q)
	}
	return nil
}
