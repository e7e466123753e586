package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"civic-reports/internal/models"
)

const (
	defaultPriority = "low"
	healthTimeout   = 5 * time.Second
	maxErrorBody    = 4 << 10
)

var (
	// ErrNoEndpoint is returned for categories without a dedicated detector.
	ErrNoEndpoint = errors.New("no detector endpoint for category")

	// ErrMalformedDetection is returned when a detection carries a confidence
	// outside [0,1] or a bbox that is not four numbers.
	ErrMalformedDetection = errors.New("malformed detection")
)

// Endpoint maps a category to its detector route. Categories without a
// dedicated model are skipped rather than routed to another category's model.
func Endpoint(category models.Category) (string, bool) {
	switch category {
	case models.CategoryPothole:
		return "pothole", true
	case models.CategoryGarbage:
		return "garbage", true
	case models.CategoryFallenTree:
		return "fallentree", true
	case models.CategoryBrokenSign:
		return "brokensignage", true
	case models.CategoryStreetLight:
		return "streetlight", true
	case models.CategoryGraffiti:
		return "", false
	default:
		return "", false
	}
}

// StatusError is a non-2xx detector response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("detector responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a detector client whose calls are bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type detectResponse struct {
	Detections      []models.Detection
	Priority        string
	TotalDetections int
	AnnotatedImage  string
}

// Detect uploads image to the category's detector and returns its findings.
func (c *Client) Detect(ctx context.Context, category models.Category, image []byte, fileName string) (*models.DetectionResult, error) {
	endpoint, ok := Endpoint(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, category)
	}

	body, contentType, err := multipartBody(image, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	parsed, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	log.Printf("detector: %s returned %d detections, priority=%s", endpoint, parsed.TotalDetections, parsed.Priority)
	return &models.DetectionResult{
		Detections:      parsed.Detections,
		Priority:        parsed.Priority,
		TotalDetections: parsed.TotalDetections,
		AnnotatedImage:  parsed.AnnotatedImage,
	}, nil
}

// Health checks that the detector root answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detector health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func multipartBody(image []byte, fileName string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	partType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if partType == "" {
		partType = "image/jpeg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	header.Set("Content-Type", partType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// decodeResponse reads the detector payload. Each model names its priority
// field differently (road_priority, garbage_priority, ...), so any key
// containing "priority" is accepted.
func decodeResponse(r io.Reader) (*detectResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	out := &detectResponse{Detections: []models.Detection{}, Priority: defaultPriority}

	if v, ok := raw["detections"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Detections); err != nil {
			return nil, fmt.Errorf("failed to decode detections: %w", err)
		}
		if out.Detections == nil {
			out.Detections = []models.Detection{}
		}
		for i, d := range out.Detections {
			if err := validateDetection(d); err != nil {
				return nil, fmt.Errorf("detection %d: %w", i, err)
			}
		}
	}
	if v, ok := raw["total_detections"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.TotalDetections); err != nil {
			return nil, fmt.Errorf("failed to decode total_detections: %w", err)
		}
	}
	if key := priorityKey(raw); key != "" {
		var p string
		if err := json.Unmarshal(raw[key], &p); err == nil && p != "" {
			out.Priority = p
		}
	}
	if v, ok := raw["annotated_image"]; ok && !isNull(v) {
		var img string
		if err := json.Unmarshal(v, &img); err == nil && img != "" {
			if !strings.HasPrefix(img, "data:") {
				// the detector encodes annotated frames as bare base64 JPEG
				img = "data:image/jpeg;base64," + img
			}
			out.AnnotatedImage = img
		}
	}
	return out, nil
}

func validateDetection(d models.Detection) error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v", ErrMalformedDetection, d.Confidence)
	}
	if len(d.BBox) != 4 {
		return fmt.Errorf("%w: bbox has %d values", ErrMalformedDetection, len(d.BBox))
	}
	return nil
}

func priorityKey(raw map[string]json.RawMessage) string {
	if _, ok := raw["priority"]; ok {
		return "priority"
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if strings.Contains(k, "priority") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
