// Package contentstore anchors image bytes under an identifier derived from
// their SHA-256 digest. The bytes live in the blob store under cas/<id>;
// Redis only holds the small metadata entry that marks an id as anchored.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"civic-reports/internal/storage/minio"
)

const (
	idPrefix  = "sha256-"
	keyPrefix = "cas:"
	namespace = "cas"
)

var ErrInvalidID = errors.New("invalid content id")

type backend interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
}

type blobBackend interface {
	Put(ctx context.Context, namespace, key string, data []byte, mediaType string) (string, error)
	DownloadFile(ctx context.Context, objectName string) (io.ReadCloser, error)
}

type Metadata struct {
	ReporterKey string `json:"reporterKey"`
	City        string `json:"city"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type entry struct {
	Metadata
	Size   int    `json:"size"`
	Object string `json:"object"`
}

type Store struct {
	kv    backend
	blobs blobBackend
	ttl   time.Duration
}

// New returns a store keeping bytes in blobs and metadata in kv. A zero ttl
// keeps metadata entries forever.
func New(kv backend, blobs blobBackend, ttl time.Duration) *Store {
	return &Store{kv: kv, blobs: blobs, ttl: ttl}
}

// ContentID derives the identifier for data.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return idPrefix + hex.EncodeToString(sum[:])
}

// Put stores data and returns its content identifier. Storing identical bytes
// twice keeps the first entry and returns the same identifier.
func (s *Store) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	if len(data) == 0 {
		return "", errors.New("contentstore: empty payload")
	}
	id := ContentID(data)
	key := keyPrefix + id

	if _, err := s.kv.Get(ctx, key); err == nil {
		log.Printf("contentstore: %s already anchored", id)
		return id, nil
	}

	// the object is written before the anchor so an anchored id always has bytes
	if _, err := s.blobs.Put(ctx, namespace, id, data, meta.ContentType); err != nil {
		return "", fmt.Errorf("contentstore: write %s: %w", id, err)
	}

	payload, err := json.Marshal(entry{
		Metadata: meta,
		Size:     len(data),
		Object:   minio.ObjectName(namespace, id),
	})
	if err != nil {
		return "", fmt.Errorf("contentstore: encode entry: %w", err)
	}
	created, err := s.kv.SetNX(ctx, key, payload, s.ttl)
	if err != nil {
		return "", fmt.Errorf("contentstore: put %s: %w", id, err)
	}
	if !created {
		log.Printf("contentstore: %s anchored concurrently", id)
	}
	return id, nil
}

// Get returns the bytes and metadata stored under id.
func (s *Store) Get(ctx context.Context, id string) ([]byte, Metadata, error) {
	if !strings.HasPrefix(id, idPrefix) || len(id) != len(idPrefix)+sha256.Size*2 {
		return nil, Metadata{}, ErrInvalidID
	}
	raw, err := s.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("contentstore: get %s: %w", id, err)
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, Metadata{}, fmt.Errorf("contentstore: decode %s: %w", id, err)
	}

	obj, err := s.blobs.DownloadFile(ctx, e.Object)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("contentstore: read %s: %w", id, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("contentstore: read %s: %w", id, err)
	}
	return data, e.Metadata, nil
}
