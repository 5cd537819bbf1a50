// internal/adapters/storage/s3.go
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

// S3Source loads the catalog from a single JSON object in S3
type S3Source struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	key        string
	region     string
	logger     *slog.Logger
}

// Statically assert that *S3Source implements the CatalogSource interface.
var _ ports.CatalogSource = (*S3Source)(nil)

// S3Config holds S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	Key             string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // For MinIO/LocalStack
	UsePathStyle    bool   // For MinIO/LocalStack
}

// NewS3Source creates a catalog source backed by an S3 object
func NewS3Source(ctx context.Context, cfg *S3Config, logger *slog.Logger) (*S3Source, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("s3 source requires bucket and key")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	source := &S3Source{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		key:        cfg.Key,
		region:     cfg.Region,
		logger: logger.With(
			slog.String("source", "s3"),
			slog.String("bucket", cfg.Bucket),
			slog.String("key", cfg.Key)),
	}

	return source, nil
}

func buildAWSConfig(ctx context.Context, cfg *S3Config) (aws.Config, error) {
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretAccessKey,
					"",
				),
			),
		)
	}

	return config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
}

// Name identifies the source in logs and reload results
func (s *S3Source) Name() string {
	return "s3"
}

// Load downloads the catalog object and decodes it as a JSON array of products
func (s *S3Source) Load(ctx context.Context) ([]domain.Product, error) {
	buf := manager.NewWriteAtBuffer([]byte{})

	start := time.Now()
	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download catalog: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(buf.Bytes(), &products); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	s.logger.DebugContext(ctx, "catalog downloaded",
		slog.Int64("bytes", n),
		slog.Int("products", len(products)),
		slog.Duration("took", time.Since(start)))

	return products, nil
}

// Upload writes products as the catalog object and returns its location
func (s *S3Source) Upload(ctx context.Context, products []domain.Product) (string, error) {
	data, err := json.Marshal(products)
	if err != nil {
		return "", fmt.Errorf("failed to encode catalog: %w", err)
	}

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"uploaded-at": time.Now().Format(time.RFC3339),
			"upload-id":   uuid.New().String(),
			"products":    fmt.Sprint(len(products)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload catalog: %w", err)
	}

	s.logger.InfoContext(ctx, "catalog uploaded",
		slog.String("location", result.Location),
		slog.Int("products", len(products)))

	return result.Location, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *S3Source) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	// us-east-1 rejects an explicit location constraint
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, createErr := s.client.CreateBucket(ctx, input); createErr != nil {
		return fmt.Errorf("bucket %s does not exist and could not be created: %w", s.bucket, createErr)
	}

	s.logger.InfoContext(ctx, "created S3 bucket")
	return nil
}

// Exists reports whether the catalog object is present
func (s *S3Source) Exists(ctx context.Context) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("failed to check catalog existence: %w", err)
}
