package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const cacheControl = "public, max-age=31536000"

type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client stores report images in a single bucket of an S3-compatible store.
type Client struct {
	client  objectAPI
	bucket  string
	baseURL string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// PublicBaseURL prefixes object URLs. Empty derives it from the endpoint.
	PublicBaseURL string
}

// NewClient creates a new Minio client and ensures the bucket exists
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	minioClient, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	client := newClient(minioClient, opts)
	if err := client.ensureBucketExists(ctx, opts.Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s exists: %w", opts.Bucket, err)
	}

	log.Printf("Minio client initialized successfully with bucket: %s", opts.Bucket)
	return client, nil
}

func newClient(api objectAPI, opts Options) *Client {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &Client{client: api, bucket: opts.Bucket, baseURL: base}
}

// ensureBucketExists creates a bucket if it doesn't exist
func (c *Client) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", wrapError(err))
	}

	if !exists {
		err = c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", wrapError(err))
		}
		log.Printf("Created bucket: %s", bucketName)
	} else {
		log.Printf("Bucket already exists: %s", bucketName)
	}

	return nil
}

// Put writes data under namespace/key and returns the object's URL.
func (c *Client) Put(ctx context.Context, namespace, key string, data []byte, mediaType string) (string, error) {
	objectName := ObjectName(namespace, key)
	_, err := c.client.PutObject(ctx, c.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  mediaType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, wrapError(err))
	}

	log.Printf("Successfully uploaded %s to bucket %s (%d bytes)", objectName, c.bucket, len(data))
	return c.URL(objectName), nil
}

// URL is deterministic from bucket and object name.
func (c *Client) URL(objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// ObjectNameFromURL reverses URL for objects in this bucket.
func (c *Client) ObjectNameFromURL(objectURL string) (string, bool) {
	prefix := c.baseURL + "/"
	if !strings.HasPrefix(objectURL, prefix) {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimPrefix(objectURL, prefix))
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

// GetFileLink generates a presigned URL for file download
func (c *Client) GetFileLink(ctx context.Context, objectName string, expires time.Duration) (string, error) {
	presignedURL, err := c.client.PresignedGetObject(ctx, c.bucket, objectName, expires, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", wrapError(err))
	}

	return presignedURL.String(), nil
}

// DownloadFile downloads an object from the bucket
func (c *Client) DownloadFile(ctx context.Context, objectName string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", wrapError(err))
	}

	return object, nil
}

// Exists reports whether objectName is present in the bucket.
func (c *Client) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", objectName, wrapError(err))
}

func ObjectName(namespace, key string) string {
	return strings.Trim(namespace, "/") + "/" + strings.TrimLeft(key, "/")
}

// StatusError carries the HTTP status of a failed S3 call so callers can
// classify it.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string   { return fmt.Sprintf("s3 status %d: %v", e.Code, e.Err) }
func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Code }

func wrapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return err
	}
	return &StatusError{Code: resp.StatusCode, Err: err}
}
