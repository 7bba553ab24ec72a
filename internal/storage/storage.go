// Package storage contains the object storage gateway used for submission images.
// Implementations stream from the caller's reader and never touch local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bookintake/internal/config"
)

var (
	// ErrNotConfigured is returned by every call when storage settings are missing.
	ErrNotConfigured = errors.New("storage is not configured")
	// ErrBucketNotFound means the configured bucket does not exist. Buckets are never created implicitly.
	ErrBucketNotFound = errors.New("storage bucket not found")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known, -1 otherwise.
type PutObjectOptions struct {
	Size         int64
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// ObjectInfo describes an uploaded object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	URL          string
	LastModified time.Time
}

// Storage is an S3-compatible object store bound to a single bucket.
type Storage interface {
	// Put uploads an object under key. The returned info carries the public URL.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// PublicURL returns the anonymous read URL for key.
	PublicURL(key string) string
	// CheckBucket verifies the configured bucket exists.
	CheckBucket(ctx context.Context) error
	// Bucket is the configured bucket name.
	Bucket() string
}

// New returns the gateway selected by cfg.Driver, or an unconfigured gateway
// when credentials are missing.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	if !cfg.Configured() {
		return Unconfigured(), nil
	}
	switch cfg.Driver {
	case "", "s3":
		return NewS3(ctx, cfg)
	case "minio":
		return NewMinIO(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// joinPublicURL builds <base>/<bucket>/<key>.
func joinPublicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}

func uploadTimeout(cfg config.StorageConfig) time.Duration {
	if cfg.UploadTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.UploadTimeoutSec) * time.Second
}

type unconfigured struct{}

// Unconfigured returns a Storage whose every operation fails with ErrNotConfigured.
func Unconfigured() Storage { return unconfigured{} }

func (unconfigured) Put(context.Context, string, io.Reader, PutObjectOptions) (ObjectInfo, error) {
	return ObjectInfo{}, ErrNotConfigured
}

func (unconfigured) PublicURL(string) string { return "" }

func (unconfigured) CheckBucket(context.Context) error { return ErrNotConfigured }

func (unconfigured) Bucket() string { return "" }
