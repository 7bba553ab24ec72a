package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bookintake/internal/config"
)

// minioStorage implements Storage against a self-hosted MinIO.
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client  *minio.Client
	bucket  string
	baseURL string
	timeout time.Duration

	mu       sync.Mutex
	verified bool
}

// NewMinIO creates a MinIO-backed Storage. The endpoint is host[:port] without a path.
// The bucket is checked lazily on first upload.
func NewMinIO(cfg config.StorageConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base = cli.EndpointURL().String()
	}

	return &minioStorage{
		client:  cli,
		bucket:  cfg.Bucket,
		baseURL: base,
		timeout: uploadTimeout(cfg),
	}, nil
}

// CheckBucket reports ErrBucketNotFound when the bucket is missing. A positive
// answer is cached for the life of the client.
func (m *minioStorage) CheckBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verified {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, m.bucket)
		}
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, m.bucket)
	}
	m.verified = true
	return nil
}

// Put uploads an object using streaming I/O only.
func (m *minioStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.CheckBucket(ctx); err != nil {
		return ObjectInfo{}, err
	}

	info, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		CacheControl: opt.CacheControl,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  opt.ContentType,
		URL:          m.PublicURL(key),
		LastModified: time.Now(), // MinIO PutObjectInfo doesn't return LastModified
	}, nil
}

func (m *minioStorage) Bucket() string { return m.bucket }

func (m *minioStorage) PublicURL(key string) string {
	return joinPublicURL(m.baseURL, m.bucket, key)
}
