package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// immutableCacheControl is stored on uploads. Keys are never reused, so objects can be cached forever.
const immutableCacheControl = "public, max-age=31536000, immutable"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PublicURLPrefix string // Base URL objects are served from, e.g. a CDN domain

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("access key id and secret access key are required")
	}
	if c.PublicURLPrefix != "" {
		if _, err := url.Parse(c.PublicURLPrefix); err != nil {
			return fmt.Errorf("invalid public url prefix: %w", err)
		}
	}
	return nil
}

// Backend is an S3-compatible implementation of the sharevault.BlobStore interface
type Backend struct {
	uploader *manager.Uploader
	config   Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint for S3-compatible services (MinIO, R2, etc.)
	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	backend := NewWithClient(client, config)

	if config.CreateBucketIfNotExist {
		if err := createBucketIfNotExists(ctx, client, config); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// NewWithClient creates a backend over an existing client
func NewWithClient(client manager.UploadAPIClient, config Config) *Backend {
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	return &Backend{
		uploader: manager.NewUploader(client),
		config:   config,
	}
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func createBucketIfNotExists(ctx context.Context, client *s3.Client, config Config) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(config.Bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) && apiErrorCode(err) != "NoSuchBucket" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(config.Bucket),
	}
	if config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(config.Region),
		}
	}

	if _, err := client.CreateBucket(ctx, input); err != nil {
		switch apiErrorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// apiErrorCode returns the S3 error code carried by err, if any.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Put uploads content to S3
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, params sharevault.PutParams) error {
	input := &s3.PutObjectInput{
		Bucket:       aws.String(b.config.Bucket),
		Key:          aws.String(key),
		Body:         reader,
		CacheControl: aws.String(immutableCacheControl),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}
	if params.OriginalName != "" {
		input.Metadata = map[string]string{"original-name": url.QueryEscape(params.OriginalName)}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		if code := apiErrorCode(err); code != "" {
			return fmt.Errorf("failed to upload %s to S3 (%s): %w", key, code, err)
		}
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

// PublicURL returns the URL under which key is served
func (b *Backend) PublicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case b.config.PublicURLPrefix != "":
		return strings.TrimRight(b.config.PublicURLPrefix, "/") + "/" + escaped
	case b.config.Endpoint != "":
		return strings.TrimRight(b.config.Endpoint, "/") + "/" + b.config.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.config.Bucket, b.config.Region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ sharevault.BlobStore = (*Backend)(nil)
