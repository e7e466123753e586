package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const defaultMediaType = "image/png"

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
}

type imagePayload struct {
	Data      []byte
	MediaType string
	Extension string
}

// decodeImage accepts raw base64 or a data URL. The media type comes from the
// data URL header and falls back to PNG when absent or unrecognized.
func decodeImage(content string) (imagePayload, error) {
	mediaType := defaultMediaType
	encoded := strings.TrimSpace(content)

	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 {
			return imagePayload{}, errors.New("malformed data URL")
		}
		header := encoded[len("data:"):comma]
		encoded = encoded[comma+1:]
		declared, _, _ := strings.Cut(header, ";")
		declared = strings.ToLower(strings.TrimSpace(declared))
		if _, known := extensions[declared]; known {
			mediaType = declared
		}
	}
	if mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return imagePayload{}, fmt.Errorf("image is not valid base64: %w", err)
	}
	if len(data) == 0 {
		return imagePayload{}, errors.New("image is empty")
	}
	return imagePayload{Data: data, MediaType: mediaType, Extension: extensions[mediaType]}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
