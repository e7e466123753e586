package contentstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

type memoryKV struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = fmt.Sprint(v)
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return v, nil
}

type memoryBlobs struct {
	objects map[string][]byte
	puts    int
	err     error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}}
}

func (m *memoryBlobs) Put(_ context.Context, namespace, key string, data []byte, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.puts++
	m.objects[namespace+"/"+key] = append([]byte(nil), data...)
	return "https://blobs.example/" + namespace + "/" + key, nil
}

func (m *memoryBlobs) DownloadFile(_ context.Context, objectName string) (io.ReadCloser, error) {
	data, ok := m.objects[objectName]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestPutIsContentAddressed(t *testing.T) {
	kv := newMemoryKV()
	blobs := newMemoryBlobs()
	store := New(kv, blobs, 0)
	meta := Metadata{ReporterKey: "ana@example.com", City: "Bengaluru", FileName: "a.jpg", ContentType: "image/jpeg"}

	first, err := store.Put(context.Background(), []byte("image-bytes"), meta)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !strings.HasPrefix(first, "sha256-") || first != ContentID([]byte("image-bytes")) {
		t.Fatalf("unexpected id %s", first)
	}
	second, err := store.Put(context.Background(), []byte("image-bytes"), Metadata{FileName: "other.jpg"})
	if err != nil {
		t.Fatalf("second Put returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical ids, got %s and %s", first, second)
	}
	if len(kv.values) != 1 || blobs.puts != 1 {
		t.Fatalf("expected a single entry and object, got %d entries and %d puts", len(kv.values), blobs.puts)
	}

	data, gotMeta, err := store.Get(context.Background(), first)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(data) != "image-bytes" || gotMeta.FileName != "a.jpg" {
		t.Fatalf("unexpected entry %q %+v", data, gotMeta)
	}
}

func TestPutKeepsBytesOutOfRedis(t *testing.T) {
	kv := newMemoryKV()
	blobs := newMemoryBlobs()
	store := New(kv, blobs, 24*time.Hour)
	payload := bytes.Repeat([]byte("x"), 64<<10)

	id, err := store.Put(context.Background(), payload, Metadata{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !bytes.Equal(blobs.objects["cas/"+id], payload) {
		t.Fatalf("expected bytes under cas/%s", id)
	}
	entry := kv.values[keyPrefix+id]
	if len(entry) > 1024 {
		t.Fatalf("metadata entry holds %d bytes, expected only metadata", len(entry))
	}
	if kv.ttls[keyPrefix+id] != 24*time.Hour {
		t.Fatalf("expected ttl to be applied, got %v", kv.ttls[keyPrefix+id])
	}
}

func TestPutPropagatesBackendErrors(t *testing.T) {
	kv := newMemoryKV()
	kv.err = errors.New("connection refused")
	store := New(kv, newMemoryBlobs(), time.Hour)
	if _, err := store.Put(context.Background(), []byte("x"), Metadata{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := store.Put(context.Background(), nil, Metadata{}); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestPutDoesNotAnchorWhenBlobWriteFails(t *testing.T) {
	kv := newMemoryKV()
	blobs := newMemoryBlobs()
	blobs.err = errors.New("s3 unavailable")
	store := New(kv, blobs, 0)

	if _, err := store.Put(context.Background(), []byte("image"), Metadata{}); err == nil {
		t.Fatalf("expected error")
	}
	if len(kv.values) != 0 {
		t.Fatalf("expected no anchor, got %v", kv.values)
	}
}

func TestGetRejectsMalformedIDs(t *testing.T) {
	store := New(newMemoryKV(), newMemoryBlobs(), 0)
	if _, _, err := store.Get(context.Background(), "bafy123"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
