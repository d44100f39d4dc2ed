package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 publication.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// Uploader publishes files to remote storage. The pipeline holds a nil
// Uploader when publication is not configured.
type Uploader interface {
	// UploadFile uploads a local file under the given key and returns the
	// public URL.
	UploadFile(ctx context.Context, key, path string) (string, error)
}

// S3Uploader publishes files to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Uploader creates a new S3Uploader.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// Compile-time check that S3Uploader implements Uploader.
var _ Uploader = (*S3Uploader)(nil)

// UploadFile uploads a local file to S3 and returns the public URL.
func (u *S3Uploader) UploadFile(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is constructed internally
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return u.Upload(ctx, key, f)
}

// Upload streams data to S3 under the given key and returns the public URL.
func (u *S3Uploader) Upload(ctx context.Context, key string, data io.Reader) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload to S3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
	return url, nil
}

// KeyFor builds the S3 object key for a published file, namespaced per run
// root so repeated runs do not overwrite each other.
func KeyFor(runRoot, path string) string {
	return filepath.ToSlash(filepath.Join(filepath.Base(runRoot), filepath.Base(path)))
}
