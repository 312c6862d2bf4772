package enums

import (
	"fmt"
	"strings"
)

// ImageMimeType lists the receipt photo formats accepted for upload and scan.
type ImageMimeType string

const (
	ImageMimeJPEG ImageMimeType = "image/jpeg"
	ImageMimePNG  ImageMimeType = "image/png"
	ImageMimeHEIC ImageMimeType = "image/heic"
	ImageMimeWEBP ImageMimeType = "image/webp"
)

var validImageMimeTypes = []ImageMimeType{
	ImageMimeJPEG,
	ImageMimePNG,
	ImageMimeHEIC,
	ImageMimeWEBP,
}

// String implements fmt.Stringer.
func (m ImageMimeType) String() string {
	return string(m)
}

// IsValid reports whether the mime type is accepted.
func (m ImageMimeType) IsValid() bool {
	for _, candidate := range validImageMimeTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseImageMimeType normalizes case, parameters and the image/jpg alias.
func ParseImageMimeType(value string) (ImageMimeType, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "image/jpg" {
		raw = string(ImageMimeJPEG)
	}
	for _, candidate := range validImageMimeTypes {
		if string(candidate) == raw {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid image mime type %q", value)
}
