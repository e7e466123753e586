package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"civic-reports/internal/retry"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	buckets map[string]bool
	puts    map[string][]byte
	opts    map[string]minio.PutObjectOptions
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, puts: map[string][]byte{}, opts: map[string]minio.PutObjectOptions{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts[bucket+"/"+object] = data
	f.opts[bucket+"/"+object] = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjects) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjects) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	data, ok := f.puts[bucket+"/"+object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey"}
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://signed.example/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func TestPutReturnsDeterministicURL(t *testing.T) {
	fake := newFakeObjects()
	c := newClient(fake, Options{Endpoint: "localhost:9000", Bucket: "civic"})
	if err := c.ensureBucketExists(context.Background(), "civic"); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}
	if !fake.buckets["civic"] {
		t.Fatalf("expected bucket to be created")
	}

	got, err := c.Put(context.Background(), "Pothole", "ana@example.com/photo 1.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	want := "http://localhost:9000/civic/Pothole/ana@example.com/photo%201.jpg"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	stored := fake.puts["civic/Pothole/ana@example.com/photo 1.jpg"]
	if string(stored) != "jpeg" {
		t.Fatalf("unexpected stored payload %q", stored)
	}
	opts := fake.opts["civic/Pothole/ana@example.com/photo 1.jpg"]
	if opts.ContentType != "image/jpeg" || opts.CacheControl != cacheControl {
		t.Fatalf("unexpected put options: %+v", opts)
	}

	name, ok := c.ObjectNameFromURL(got)
	if !ok || name != "Pothole/ana@example.com/photo 1.jpg" {
		t.Fatalf("unexpected object name %q (ok=%v)", name, ok)
	}
}

func TestPublicBaseURL(t *testing.T) {
	c := newClient(newFakeObjects(), Options{Endpoint: "s3.ap-south-1.amazonaws.com", Bucket: "civic", UseSSL: true, PublicBaseURL: "https://civic.s3.ap-south-1.amazonaws.com/"})
	if got := c.URL("Garbage/a/b.png"); got != "https://civic.s3.ap-south-1.amazonaws.com/Garbage/a/b.png" {
		t.Fatalf("unexpected URL %s", got)
	}
	if _, ok := c.ObjectNameFromURL("https://elsewhere.example/Garbage/a/b.png"); ok {
		t.Fatalf("expected foreign URL to be rejected")
	}
}

func TestPutWrapsServiceErrorsForRetryClassification(t *testing.T) {
	fake := newFakeObjects()
	fake.putErr = minio.ErrorResponse{StatusCode: 503, Code: "SlowDown", Message: "reduce your request rate"}
	c := newClient(fake, Options{Endpoint: "localhost:9000", Bucket: "civic"})
	_, err := c.Put(context.Background(), "Pothole", "a/b.png", []byte("x"), "image/png")
	if err == nil {
		t.Fatalf("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode() != 503 {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
	if !retry.IsRetriable(err) {
		t.Fatalf("expected 503 to be retriable")
	}

	fake.putErr = minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"}
	_, err = c.Put(context.Background(), "Pothole", "a/b.png", []byte("x"), "image/png")
	if retry.IsRetriable(err) {
		t.Fatalf("expected 403 to be permanent")
	}
}

func TestGetFileLink(t *testing.T) {
	c := newClient(newFakeObjects(), Options{Endpoint: "localhost:9000", Bucket: "civic"})
	link, err := c.GetFileLink(context.Background(), "Pothole/a/b.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("GetFileLink: %v", err)
	}
	if link != "https://signed.example/civic/Pothole/a/b.png?X-Amz-Signature=abc" {
		t.Fatalf("unexpected link %s", link)
	}
}

func TestExists(t *testing.T) {
	fake := newFakeObjects()
	c := newClient(fake, Options{Endpoint: "localhost:9000", Bucket: "civic"})
	ok, err := c.Exists(context.Background(), "Pothole_Thumbnail/a/b.jpg")
	if err != nil || ok {
		t.Fatalf("expected missing object, got ok=%v err=%v", ok, err)
	}
	if _, err := c.Put(context.Background(), "Pothole_Thumbnail", "a/b.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err = c.Exists(context.Background(), "Pothole_Thumbnail/a/b.jpg")
	if err != nil || !ok {
		t.Fatalf("expected object to exist, got ok=%v err=%v", ok, err)
	}
}
