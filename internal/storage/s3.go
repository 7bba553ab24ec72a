package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"bookintake/internal/config"
)

// s3API is the subset of *s3.Client the gateway uses.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Storage implements Storage over the S3 API. Supabase storage serves it under
// <project>/storage/v1/s3 with path-style addressing.
type s3Storage struct {
	client  s3API
	bucket  string
	baseURL string
	timeout time.Duration

	mu       sync.Mutex
	verified bool
}

// NewS3 creates an S3-backed Storage with static credentials and a custom endpoint.
func NewS3(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return newS3Storage(client, cfg), nil
}

func newS3Storage(client s3API, cfg config.StorageConfig) *s3Storage {
	base := cfg.PublicBaseURL
	if base == "" {
		base = cfg.Endpoint
	}
	return &s3Storage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: base,
		timeout: uploadTimeout(cfg),
	}
}

// CheckBucket issues HeadBucket once and caches success.
func (s *s3Storage) CheckBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified {
		return nil
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchBucket":
				return fmt.Errorf("%w: %s", ErrBucketNotFound, s.bucket)
			}
		}
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	s.verified = true
	return nil
}

func (s *s3Storage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.CheckBucket(ctx); err != nil {
		return ObjectInfo{}, err
	}

	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     r,
		Metadata: opt.Metadata,
	}
	if opt.Size >= 0 {
		in.ContentLength = aws.Int64(opt.Size)
	}
	if opt.ContentType != "" {
		in.ContentType = aws.String(opt.ContentType)
	}
	if opt.CacheControl != "" {
		in.CacheControl = aws.String(opt.CacheControl)
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         opt.Size,
		ETag:         aws.ToString(out.ETag),
		ContentType:  opt.ContentType,
		URL:          s.PublicURL(key),
		LastModified: time.Now(),
	}, nil
}

func (s *s3Storage) Bucket() string { return s.bucket }

func (s *s3Storage) PublicURL(key string) string {
	return joinPublicURL(s.baseURL, s.bucket, key)
}
