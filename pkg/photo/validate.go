package photo

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrContentMismatch  = errors.New("file content does not match declared type")
)

// Magic byte signatures per accepted MIME type
var magicBytes = map[string][][]byte{
	"image/jpeg": {{0xFF, 0xD8, 0xFF}},
	"image/png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	"image/webp": {{0x52, 0x49, 0x46, 0x46}}, // RIFF header
}

// DetectImageType sniffs data and returns the accepted image MIME type.
// The declared type must agree with the content when it is an image type.
func DetectImageType(data []byte, declared string) (string, error) {
	if len(data) < 4 {
		return "", ErrUnsupportedImage
	}

	detected := http.DetectContentType(data)
	if _, ok := magicBytes[detected]; !ok {
		return "", ErrUnsupportedImage
	}
	if !hasSignature(detected, data) {
		return "", ErrContentMismatch
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if strings.HasPrefix(declared, "image/") && declared != detected {
		return "", ErrContentMismatch
	}
	return detected, nil
}

func hasSignature(mimeType string, data []byte) bool {
	for _, sig := range magicBytes[mimeType] {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}
