package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectStoreOpts func(c *objectStoreConfig)

type objectStoreConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	publicBaseURL   string
	useSSL          bool
}

// ObjectStore uploads to an S3-compatible bucket.
type ObjectStore struct {
	cfg     *objectStoreConfig
	client  *minio.Client
	baseURL string
}

func NewObjectStore(opts ...ObjectStoreOpts) (*ObjectStore, error) {
	cfg := &objectStoreConfig{region: "us-east-1"}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" {
		return nil, errors.New("storage: object store endpoint is required")
	}
	if cfg.bucket == "" {
		return nil, errors.New("storage: object store bucket is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: object store client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.publicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.useSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.endpoint, cfg.bucket)
	}
	return &ObjectStore{cfg: cfg, client: client, baseURL: baseURL}, nil
}

func (s *ObjectStore) Name() string { return "minio" }

func (s *ObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.cfg.bucket, cleanKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object %s: %w", cleanKey, err)
	}
	return joinURL(s.baseURL, cleanKey), nil
}

func WithEndpoint(endpoint string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.useSSL = useSSL
	}
}

func WithRegion(region string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.region = region
	}
}

// WithPublicBaseURL overrides the endpoint/bucket URL handed back to callers,
// e.g. for a CDN in front of the bucket.
func WithPublicBaseURL(base string) ObjectStoreOpts {
	return func(c *objectStoreConfig) {
		c.publicBaseURL = base
	}
}

var _ Uploader = (*ObjectStore)(nil)
