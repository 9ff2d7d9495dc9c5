// Package storage hosts generated images and returns their public URLs.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aiakap/travel-planner-v1/internal/infra"
)

// Uploader stores bytes under a key and returns the URL they are served from.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Name() string
}

// NewFromConfig builds the uploader selected by STORAGE_DRIVER.
func NewFromConfig(cfg *infra.Config) (Uploader, error) {
	switch cfg.StorageDriver {
	case "", "filesystem":
		return NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	case "minio":
		return NewObjectStore(
			WithEndpoint(cfg.MinioEndpoint),
			WithBucket(cfg.MinioBucket),
			WithAccessKey(cfg.MinioAccessKey),
			WithSecretKey(cfg.MinioSecretKey),
			WithSSL(cfg.MinioUseSSL),
			WithPublicBaseURL(cfg.StorageBaseURL),
		)
	}
	return nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
}

func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
