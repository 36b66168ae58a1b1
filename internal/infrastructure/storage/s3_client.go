// Package storage implements the analysis.BlobStore capability against S3
// (or an S3-compatible endpoint such as MinIO).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"webscope/internal/config"
	"webscope/internal/core/domain/analysis"
)

// S3Client wraps the AWS S3 SDK for blob storage operations.
type S3Client struct {
	client     *s3.Client
	logger     *slog.Logger
	bucketName string
}

var _ analysis.BlobStore = (*S3Client)(nil)

// NewS3Client builds an S3Client from cfg. A non-empty Endpoint selects
// static credentials against a custom endpoint (MinIO, LocalStack). With
// no Endpoint, a set AccessKeyID and SecretAccessKey select static
// credentials against AWS; otherwise the standard AWS credential chain is
// used.
func NewS3Client(cfg *config.BlobStorageConfig, logger *slog.Logger) (*S3Client, error) {
	ctx := context.Background()
	var awsCfg aws.Config
	var err error

	switch {
	case cfg.Endpoint != "":
		awsCfg, err = awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(cfg.Region),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
		if err == nil {
			awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(cfg.Region),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
	default:
		awsCfg, err = awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("blob store initialized",
		"provider", cfg.Provider, "bucket", cfg.BucketName, "region", cfg.Region,
		"endpoint", cfg.Endpoint, "path_style", cfg.UsePathStyle)

	return &S3Client{client: client, bucketName: cfg.BucketName, logger: logger}, nil
}

// Upload implements analysis.BlobStore.
func (c *S3Client) Upload(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		c.logger.Error("blob upload failed", "bucket", c.bucketName, "key", key, "error", err)
		return "", fmt.Errorf("failed to upload to blob store: %w", err)
	}

	c.logger.Debug("blob uploaded", "bucket", c.bucketName, "key", key, "size", len(content))
	return c.uri(key), nil
}

// Download fetches a previously uploaded object. Not part of analysis.BlobStore;
// used by operational tooling that needs to retrieve an archived screenshot.
func (c *S3Client) Download(ctx context.Context, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from blob store: %w", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob store object body: %w", err)
	}
	return content, nil
}

// Delete removes an object from the blob store.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from blob store: %w", err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (c *S3Client) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucketName, key)
}
