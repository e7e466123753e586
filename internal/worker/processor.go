package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"civic-reports/internal/models"
	"civic-reports/internal/retry"

	"github.com/disintegration/imaging"
)

const thumbnailQuality = 80

type objectStore interface {
	DownloadFile(ctx context.Context, objectName string) (io.ReadCloser, error)
	ObjectNameFromURL(objectURL string) (string, bool)
	Put(ctx context.Context, namespace, key string, data []byte, mediaType string) (string, error)
}

// ErrForeignObject is returned for images outside the configured bucket.
var ErrForeignObject = errors.New("image is not stored in this bucket")

type Processor struct {
	store objectStore
	width int
	retry retry.Config
}

func NewProcessor(store objectStore, width int, retryCfg retry.Config) *Processor {
	if width <= 0 {
		width = 320
	}
	return &Processor{store: store, width: width, retry: retryCfg}
}

// ProcessIssue renders a thumbnail of the issue's final image and returns its
// URL. Issues without an image are skipped.
func (p *Processor) ProcessIssue(ctx context.Context, event models.IssueCreatedEvent) (string, error) {
	if event.FinalImageURL == "" {
		log.Printf("Issue %s has no image, skipping thumbnail", event.IssueID)
		return "", nil
	}
	objectName, ok := p.store.ObjectNameFromURL(event.FinalImageURL)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrForeignObject, event.FinalImageURL)
	}

	log.Printf("Downloading %s for issue %s", objectName, event.IssueID)
	obj, err := p.store.DownloadFile(ctx, objectName)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer obj.Close()

	img, err := imaging.Decode(obj, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > p.width {
		img = imaging.Resize(img, p.width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	namespace, key := models.ThumbnailObject(event.Category, event.ReporterKey, event.IssueID)
	url, err := retry.Do(ctx, p.retry, func(ctx context.Context) (string, error) {
		return p.store.Put(ctx, namespace, key, buf.Bytes(), "image/jpeg")
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	log.Printf("Thumbnail for issue %s stored at %s", event.IssueID, url)
	return url, nil
}
