package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"civic-reports/internal/detector"
	"civic-reports/internal/metrics"
	"civic-reports/internal/models"
	"civic-reports/internal/repository"
	"civic-reports/internal/retry"
	"civic-reports/internal/storage/contentstore"

	"github.com/google/uuid"
)

type BlobStore interface {
	Put(ctx context.Context, namespace, key string, data []byte, mediaType string) (string, error)
}

type ContentStore interface {
	Put(ctx context.Context, data []byte, meta contentstore.Metadata) (string, error)
}

type Detector interface {
	Detect(ctx context.Context, category models.Category, image []byte, fileName string) (*models.DetectionResult, error)
}

type Publisher interface {
	PublishIssueCreated(ctx context.Context, event models.IssueCreatedEvent) error
}

// Deps are the collaborators of a Pipeline. Content, Detector and Events are
// optional; a nil one makes its step skip.
type Deps struct {
	Blobs      BlobStore
	Content    ContentStore
	Detector   Detector
	Repository repository.Repository
	Events     Publisher
	Metrics    *metrics.Metrics
}

type Options struct {
	Retry          retry.Config
	MLTimeout      time.Duration
	RequestTimeout time.Duration

	// Now and NewToken feed storage key derivation.
	Now      func() time.Time
	NewToken func() string
}

func DefaultOptions() Options {
	return Options{
		Retry:          retry.DefaultConfig(),
		MLTimeout:      30 * time.Second,
		RequestTimeout: 45 * time.Second,
	}
}

type MLDetection struct {
	Detections      []models.Detection `json:"detections"`
	Priority        string             `json:"priority"`
	TotalDetections int                `json:"totalDetections"`
	AvgConfidence   *float64           `json:"avgConfidence"`
}

type Response struct {
	ID                uuid.UUID    `json:"Id"`
	ImageURL          string       `json:"imageUrl"`
	AnnotatedImageURL string       `json:"annotatedImageUrl,omitempty"`
	MLDetection       *MLDetection `json:"mlDetection,omitempty"`

	Record *models.IssueRecord `json:"-"`
	Steps  Steps               `json:"-"`
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Submit runs one submission through storage, anchoring, detection and
// persistence. Only validation, the first image upload and the final write can
// fail it; the other steps degrade into the returned Steps.
func (p *Pipeline) Submit(ctx context.Context, sub models.Submission) (*Response, error) {
	start := time.Now()
	resp, err := p.submit(ctx, sub)

	result := "success"
	var ingestErr *Error
	if errors.As(err, &ingestErr) {
		result = ingestErr.Kind.String() + "_error"
	} else if err != nil {
		result = "error"
	}
	category := string(sub.Category)
	if !sub.Category.Valid() {
		category = "unknown"
	}
	p.deps.Metrics.ObserveSubmission(category, result, time.Since(start))
	return resp, err
}

func (p *Pipeline) submit(ctx context.Context, sub models.Submission) (*Response, error) {
	if err := Validate(sub); err != nil {
		log.Printf("Rejected %s submission from %q: %v", sub.Category, sub.ReporterKey, err)
		return nil, err
	}
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	now := p.opts.Now().UTC()
	record := newRecord(sub, now)
	var steps Steps

	if sub.Content == "" {
		reason := "description-only submission"
		steps.Blob = skipped[string](DestinationBlob, reason)
		steps.ContentStore = skipped[string](DestinationContentStore, reason)
		steps.Detection = skipped[*models.DetectionResult](DestinationDetector, reason)
		steps.Annotated = skipped[string](DestinationAnnotated, reason)
	} else {
		img, err := decodeImage(sub.Content)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: "decode image", Err: err}
		}
		fileName := p.fileName(sub.ReporterKey, img.Extension, "")

		steps.Blob = p.store(ctx, DestinationBlob, string(sub.Category), sub.ReporterKey, fileName, img)
		p.observe(steps.Blob.Destination, steps.Blob.Status)
		imageURL, stored := steps.Blob.Get()
		if !stored {
			log.Printf("Error: failed to store %s image for %q: %v", sub.Category, sub.ReporterKey, steps.Blob.Err)
			return nil, &Error{Kind: KindStorage, Op: "upload image", Err: steps.Blob.Err}
		}
		record.OriginalImageURL = imageURL
		record.FinalImageURL = imageURL

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			steps.ContentStore = p.anchor(ctx, sub, fileName, img)
		}()
		go func() {
			defer wg.Done()
			steps.Detection = p.detect(ctx, sub.Category, img.Data, fileName)
		}()
		wg.Wait()
		p.observe(steps.ContentStore.Destination, steps.ContentStore.Status)
		p.observe(steps.Detection.Destination, steps.Detection.Status)

		if id, ok := steps.ContentStore.Get(); ok {
			record.ContentID = &id
		}

		steps.Annotated = skipped[string](DestinationAnnotated, "no annotated image")
		if result, ok := steps.Detection.Get(); ok {
			applyDetection(record, result)
			if result.AnnotatedImage != "" {
				steps.Annotated = p.storeAnnotated(ctx, sub, result.AnnotatedImage)
			}
		}
		p.observe(steps.Annotated.Destination, steps.Annotated.Status)
		if url, ok := steps.Annotated.Get(); ok {
			record.FinalImageURL = url
		}
	}

	created, err := p.deps.Repository.Create(ctx, record)
	if err != nil {
		log.Printf("Error: failed to persist issue %s: %v", record.ID, err)
		return nil, &Error{Kind: KindPersistence, Op: "persist issue", Err: err}
	}
	log.Printf("Persisted %s issue %s for %q", created.Category, created.ID, created.ReporterKey)

	steps.Event = p.publish(ctx, created)
	p.observe(steps.Event.Destination, steps.Event.Status)

	return newResponse(created, steps), nil
}

// Validate checks the fields every submission must carry.
func Validate(sub models.Submission) error {
	var missing []string
	if strings.TrimSpace(sub.ReporterKey) == "" {
		missing = append(missing, "reporterKey")
	}
	if sub.Category == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(sub.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(sub.District) == "" {
		missing = append(missing, "district")
	}
	if sub.Coordinates == nil {
		missing = append(missing, "coordinates")
	}
	if sub.Content == "" && strings.TrimSpace(sub.Description) == "" {
		missing = append(missing, "content or description")
	}
	if len(missing) > 0 {
		return validationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !sub.Category.Valid() {
		return validationError("unknown category %q", sub.Category)
	}
	// reporterKey becomes one segment of the storage key
	if strings.ContainsAny(sub.ReporterKey, `/\`) || strings.Contains(sub.ReporterKey, "..") || sub.ReporterKey == "." {
		return validationError("reporterKey %q must not contain path separators or dot segments", sub.ReporterKey)
	}
	return nil
}

func (p *Pipeline) fileName(reporterKey, ext, suffix string) string {
	return fmt.Sprintf("%s-%d-%s%s%s", reporterKey, p.opts.Now().UnixMilli(), p.opts.NewToken(), suffix, ext)
}

func (p *Pipeline) store(ctx context.Context, dest Destination, namespace, reporterKey, fileName string, img imagePayload) Outcome[string] {
	cfg := p.opts.Retry
	key := reporterKey + "/" + fileName
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Printf("Warning: upload of %s/%s failed on attempt %d, retrying in %s: %v", namespace, key, attempt, delay, err)
	}
	url, err := retry.Do(ctx, cfg, func(ctx context.Context) (string, error) {
		p.deps.Metrics.ObserveBlobAttempt()
		return p.deps.Blobs.Put(ctx, namespace, key, img.Data, img.MediaType)
	})
	if err != nil {
		if dest == DestinationBlob {
			return failed[string](dest, err)
		}
		return degraded[string](dest, err)
	}
	return succeeded(dest, url)
}

func (p *Pipeline) anchor(ctx context.Context, sub models.Submission, fileName string, img imagePayload) Outcome[string] {
	if p.deps.Content == nil {
		return skipped[string](DestinationContentStore, "content store not configured")
	}
	id, err := p.deps.Content.Put(ctx, img.Data, contentstore.Metadata{
		ReporterKey: sub.ReporterKey,
		City:        sub.City,
		FileName:    fileName,
		ContentType: img.MediaType,
	})
	if err != nil {
		log.Printf("Warning: content store anchoring failed for %s: %v", fileName, err)
		return degraded[string](DestinationContentStore, err)
	}
	return succeeded(DestinationContentStore, id)
}

func (p *Pipeline) detect(ctx context.Context, category models.Category, image []byte, fileName string) Outcome[*models.DetectionResult] {
	if p.deps.Detector == nil {
		return skipped[*models.DetectionResult](DestinationDetector, "detector not configured")
	}
	if _, mapped := detector.Endpoint(category); !mapped {
		return skipped[*models.DetectionResult](DestinationDetector, "no detector for "+string(category))
	}
	if p.opts.MLTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.MLTimeout)
		defer cancel()
	}
	result, err := p.deps.Detector.Detect(ctx, category, image, fileName)
	if err != nil {
		log.Printf("Warning: ML detection failed for %s: %v", fileName, err)
		return degraded[*models.DetectionResult](DestinationDetector, err)
	}
	if result == nil {
		return degraded[*models.DetectionResult](DestinationDetector, errors.New("detector returned no result"))
	}
	return succeeded(DestinationDetector, result)
}

func (p *Pipeline) storeAnnotated(ctx context.Context, sub models.Submission, annotated string) Outcome[string] {
	img, err := decodeImage(annotated)
	if err != nil {
		log.Printf("Warning: annotated image for %q is unusable: %v", sub.ReporterKey, err)
		return degraded[string](DestinationAnnotated, err)
	}
	fileName := p.fileName(sub.ReporterKey, img.Extension, "-annotated")
	outcome := p.store(ctx, DestinationAnnotated, string(sub.Category)+"_Annotated", sub.ReporterKey, fileName, img)
	if outcome.Status != StatusOK {
		log.Printf("Warning: annotated upload failed, keeping original image: %v", outcome.Err)
	}
	return outcome
}

func (p *Pipeline) publish(ctx context.Context, record *models.IssueRecord) Outcome[struct{}] {
	if p.deps.Events == nil {
		return skipped[struct{}](DestinationEvents, "events disabled")
	}
	if err := p.deps.Events.PublishIssueCreated(ctx, models.NewIssueCreatedEvent(record)); err != nil {
		log.Printf("Warning: failed to publish issue.created for %s: %v", record.ID, err)
		return degraded[struct{}](DestinationEvents, err)
	}
	return succeeded(DestinationEvents, struct{}{})
}

func (p *Pipeline) observe(dest Destination, status Status) {
	p.deps.Metrics.ObserveStep(string(dest), string(status))
}

func newRecord(sub models.Submission, now time.Time) *models.IssueRecord {
	record := &models.IssueRecord{
		ID:          uuid.New(),
		Category:    sub.Category,
		ReporterKey: sub.ReporterKey,
		Description: models.NullableString(strings.TrimSpace(sub.Description)),
		Status:      models.IssueStatusPending,
		City:        sub.City,
		District:    sub.District,
		Latitude:    sub.Coordinates.Latitude,
		Longitude:   sub.Coordinates.Longitude,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if loc := sub.LocationDetails; loc != nil {
		record.RoadName = models.NullableString(loc.RoadName)
		record.State = models.NullableString(loc.State)
		record.Country = models.NullableString(loc.Country)
		record.PostalCode = models.NullableString(loc.PostalCode)
		record.Neighborhood = models.NullableString(loc.Neighborhood)
		record.Landmark = models.NullableString(loc.Landmark)
		record.FormattedAddress = models.NullableString(loc.FormattedAddress)
		record.PlaceID = models.NullableString(loc.PlaceID)
		if len(loc.PlaceTypes) > 0 {
			record.PlaceTypes = append([]string(nil), loc.PlaceTypes...)
		}
	}
	return record
}

func applyDetection(record *models.IssueRecord, result *models.DetectionResult) {
	detections := result.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	priority := result.Priority
	total := result.TotalDetections
	record.Detections = detections
	record.Priority = &priority
	record.TotalDetections = &total
	record.AvgConfidence = models.AverageConfidence(detections)
}

func newResponse(record *models.IssueRecord, steps Steps) *Response {
	resp := &Response{
		ID:       record.ID,
		ImageURL: record.OriginalImageURL,
		Record:   record,
		Steps:    steps,
	}
	if record.FinalImageURL != record.OriginalImageURL {
		resp.AnnotatedImageURL = record.FinalImageURL
	}
	if result, ok := steps.Detection.Get(); ok {
		resp.MLDetection = &MLDetection{
			Detections:      record.Detections,
			Priority:        result.Priority,
			TotalDetections: result.TotalDetections,
			AvgConfidence:   models.AverageConfidence(record.Detections),
		}
	}
	return resp
}
