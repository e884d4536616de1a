package tool

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// maxImageBytes bounds images read from disk for remote models
const maxImageBytes = 20 << 20

// ImagePayload carries an image to a remote model, by URL or inline
type ImagePayload struct {
	URL    string `json:"image_url,omitempty"`
	Base64 string `json:"image_base64,omitempty"`
}

// LoadImage builds the payload for an image reference. URLs are passed
// through and local files are inlined.
func LoadImage(ref string) (ImagePayload, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ImagePayload{URL: ref}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return ImagePayload{}, fmt.Errorf("read image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return ImagePayload{}, fmt.Errorf("image %s too large (%d bytes)", ref, info.Size())
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return ImagePayload{}, fmt.Errorf("read image: %w", err)
	}
	return ImagePayload{Base64: base64.StdEncoding.EncodeToString(data)}, nil
}
