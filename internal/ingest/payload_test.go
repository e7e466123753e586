package ingest

import (
	"encoding/base64"
	"testing"
)

func TestDecodeImage(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("image-bytes"))
	tests := []struct {
		name      string
		content   string
		mediaType string
		ext       string
	}{
		{"raw base64 defaults to png", raw, "image/png", ".png"},
		{"jpeg data url", "data:image/jpeg;base64," + raw, "image/jpeg", ".jpg"},
		{"jpg alias", "data:image/jpg;base64," + raw, "image/jpeg", ".jpg"},
		{"webp data url", "data:image/webp;base64," + raw, "image/webp", ".webp"},
		{"unknown type falls back", "data:image/bmp;base64," + raw, "image/png", ".png"},
		{"unpadded base64", "data:image/png;base64," + base64.RawStdEncoding.EncodeToString([]byte("image-bytes")), "image/png", ".png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := decodeImage(tt.content)
			if err != nil {
				t.Fatalf("decodeImage: %v", err)
			}
			if img.MediaType != tt.mediaType || img.Extension != tt.ext {
				t.Fatalf("got %s %s, want %s %s", img.MediaType, img.Extension, tt.mediaType, tt.ext)
			}
			if string(img.Data) != "image-bytes" {
				t.Fatalf("unexpected data %q", img.Data)
			}
		})
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	for _, content := range []string{"data:image/png;base64", "not base64 at all!", "data:image/png;base64,"} {
		if _, err := decodeImage(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}
