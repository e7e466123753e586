package detector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civic-reports/internal/models"
)

func TestEndpointTableIsExhaustive(t *testing.T) {
	want := map[models.Category]string{
		models.CategoryPothole:     "pothole",
		models.CategoryGarbage:     "garbage",
		models.CategoryFallenTree:  "fallentree",
		models.CategoryBrokenSign:  "brokensignage",
		models.CategoryStreetLight: "streetlight",
	}
	for _, c := range models.Categories() {
		got, ok := Endpoint(c)
		expected, mapped := want[c]
		if ok != mapped || got != expected {
			t.Fatalf("Endpoint(%s) = %q,%v; want %q,%v", c, got, ok, expected, mapped)
		}
	}
	if _, ok := Endpoint(models.CategoryGraffiti); ok {
		t.Fatalf("graffiti must not borrow another category's detector")
	}
}

func TestDetectParsesDetectorPayload(t *testing.T) {
	var gotPath, gotFile string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile = header.Filename
		gotBytes, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"detections":[{"class":"pothole","confidence":0.92,"bbox":[1,2,3,4]}],"road_priority":"high","total_detections":1,"annotated_image":"/9j/4AAQ"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Detect(context.Background(), models.CategoryPothole, []byte("jpeg-bytes"), "ana-1.jpg")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if gotPath != "/pothole" || gotFile != "ana-1.jpg" || string(gotBytes) != "jpeg-bytes" {
		t.Fatalf("unexpected request path=%s file=%s bytes=%q", gotPath, gotFile, gotBytes)
	}
	if res.Priority != "high" || res.TotalDetections != 1 || len(res.Detections) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if d := res.Detections[0]; d.Class != "pothole" || d.Confidence != 0.92 || len(d.BBox) != 4 {
		t.Fatalf("unexpected detection %+v", d)
	}
	if res.AnnotatedImage != "data:image/jpeg;base64,/9j/4AAQ" {
		t.Fatalf("expected annotated image normalized to a data URL, got %q", res.AnnotatedImage)
	}
}

func TestDetectDefaultsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"annotated_image":null}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Detect(context.Background(), models.CategoryGarbage, []byte("x"), "a.png")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if res.Priority != "low" || res.TotalDetections != 0 || res.Detections == nil || len(res.Detections) != 0 {
		t.Fatalf("unexpected defaults %+v", res)
	}
	if res.AnnotatedImage != "" {
		t.Fatalf("expected no annotated image, got %q", res.AnnotatedImage)
	}
	if models.AverageConfidence(res.Detections) != nil {
		t.Fatalf("expected nil average for zero detections")
	}
}

func TestDetectRejectsMalformedDetections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"confidence above one", `{"detections":[{"class":"pothole","confidence":1.7,"bbox":[1,2,3,4]}]}`},
		{"negative confidence", `{"detections":[{"class":"pothole","confidence":-0.1,"bbox":[1,2,3,4]}]}`},
		{"short bbox", `{"detections":[{"class":"pothole","confidence":0.5,"bbox":[1,2]}]}`},
		{"missing bbox", `{"detections":[{"class":"pothole","confidence":0.5}]}`},
		{"one bad among good", `{"detections":[{"class":"a","confidence":0.4,"bbox":[0,0,1,1]},{"class":"b","confidence":1.7,"bbox":[1,2]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			res, err := NewClient(srv.URL, time.Second).Detect(context.Background(), models.CategoryPothole, []byte("x"), "a.jpg")
			if !errors.Is(err, ErrMalformedDetection) {
				t.Fatalf("expected ErrMalformedDetection, got res=%+v err=%v", res, err)
			}
		})
	}
}

func TestDetectSurfacesNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Detect(context.Background(), models.CategoryFallenTree, []byte("x"), "a.jpg")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if !strings.Contains(statusErr.Body, "model not loaded") {
		t.Fatalf("expected body in error, got %q", statusErr.Body)
	}
}

func TestDetectTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, 50*time.Millisecond).Detect(context.Background(), models.CategoryPothole, []byte("x"), "a.jpg")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestDetectSkipsUnmappedCategory(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", time.Second).Detect(context.Background(), models.CategoryGraffiti, []byte("x"), "a.jpg")
	if !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"ML Detection API"}`)
	}))
	defer srv.Close()
	if err := NewClient(srv.URL, time.Second).Health(context.Background()); err != nil {
		t.Fatalf("expected healthy detector, got %v", err)
	}
}
