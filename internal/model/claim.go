package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// imageRefPattern matches image tokens embedded in claim text (e.g. "<image:1>")
var imageRefPattern = regexp.MustCompile(`<image:\d+>`)

// Claim represents the subject under investigation
type Claim struct {
	ID      string        `json:"id"`                // Stable identifier, carried through batch results
	Text    string        `json:"text"`              // Claim text, may embed <image:N> tokens
	Images  []Image       `json:"images,omitempty"`  // Images referenced by the claim
	Context *ClaimContext `json:"context,omitempty"` // Where the claim was found
	Target  Label         `json:"label,omitempty"`   // Ground truth (batch scoring only, never prompted)
}

// Image is a claim image addressable by its token
type Image struct {
	ID        int    `json:"id"`
	Reference string `json:"reference"` // File path or URL
}

// Token returns the in-text reference for the image
func (i Image) Token() string {
	return fmt.Sprintf("<image:%d>", i.ID)
}

// ClaimContext holds optional provenance of a claim
type ClaimContext struct {
	Author   string     `json:"author,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Origin   string     `json:"origin,omitempty"`
	MetaInfo string     `json:"meta_info,omitempty"`
}

// NewClaim creates a text claim with a fresh identifier
func NewClaim(text string, images ...Image) *Claim {
	return &Claim{
		ID:     uuid.NewString(),
		Text:   text,
		Images: images,
	}
}

// EnsureID assigns a fresh identifier if the claim has none
func (c *Claim) EnsureID() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
}

// ImageRefs returns the image tokens of the claim in order of appearance,
// first those embedded in the text, then any attached but unreferenced images.
func (c *Claim) ImageRefs() []string {
	seen := make(map[string]bool)
	var refs []string

	for _, ref := range imageRefPattern.FindAllString(c.Text, -1) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for _, img := range c.Images {
		ref := img.Token()
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	return refs
}

// HasImage reports whether the claim carries at least one image
func (c *Claim) HasImage() bool {
	return len(c.ImageRefs()) > 0
}

// ResolveImage maps an image token to the attached image
func (c *Claim) ResolveImage(token string) (Image, bool) {
	for _, img := range c.Images {
		if img.Token() == token {
			return img, true
		}
	}
	return Image{}, false
}

// String renders the claim block shown to the LLM
func (c *Claim) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: \"%s\"", c.Text)

	if c.Context == nil {
		return b.String()
	}
	if c.Context.Author != "" {
		fmt.Fprintf(&b, "\nAuthor: %s", c.Context.Author)
	}
	if c.Context.Date != nil {
		fmt.Fprintf(&b, "\nDate: %s", c.Context.Date.Format("January 02, 2006"))
	}
	if c.Context.Origin != "" {
		fmt.Fprintf(&b, "\nOrigin: %s", c.Context.Origin)
	}
	if c.Context.MetaInfo != "" {
		fmt.Fprintf(&b, "\nMeta info: %s", c.Context.MetaInfo)
	}

	return b.String()
}
