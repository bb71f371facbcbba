// Package s3store uploads result files to S3.
package s3store

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploaderConfig configures the S3 Upload Manager.
type UploaderConfig struct {
	// Concurrency is the number of concurrent upload parts.
	// Default: between 2 and 8, following NumCPU.
	Concurrency int

	// PartSize is the size of each multipart part in bytes.
	// Default: the S3 minimum of 5MB; result files rarely exceed one part.
	PartSize int64
}

// DefaultUploaderConfig returns defaults based on the current machine.
func DefaultUploaderConfig() UploaderConfig {
	concurrency := runtime.NumCPU()
	if concurrency < 2 {
		concurrency = 2
	}
	if concurrency > 8 {
		concurrency = 8
	}
	return UploaderConfig{
		Concurrency: concurrency,
		PartSize:    manager.MinUploadPartSize,
	}
}

// Client uploads objects through the AWS Upload Manager.
type Client struct {
	s3Client *s3.Client
	uploader *manager.Uploader
	config   UploaderConfig
}

// NewClient creates a client using the default AWS configuration chain.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg, DefaultUploaderConfig()), nil
}

// NewClientWithConfig creates a client from an explicit AWS config.
func NewClientWithConfig(cfg aws.Config, upCfg UploaderConfig, optFns ...func(*s3.Options)) *Client {
	if upCfg.Concurrency <= 0 {
		upCfg.Concurrency = DefaultUploaderConfig().Concurrency
	}
	if upCfg.PartSize < manager.MinUploadPartSize {
		upCfg.PartSize = manager.MinUploadPartSize
	}

	s3Client := s3.NewFromConfig(cfg, optFns...)
	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.Concurrency = upCfg.Concurrency
		u.PartSize = upCfg.PartSize
	})
	return &Client{s3Client: s3Client, uploader: uploader, config: upCfg}
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Bucket   string
	Key      string
	Location string
	Duration time.Duration
}

// Upload streams body to s3://bucket/key.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader) (*UploadResult, error) {
	start := time.Now()
	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return &UploadResult{
		Bucket:   bucket,
		Key:      key,
		Location: out.Location,
		Duration: time.Since(start),
	}, nil
}

// Config returns the effective uploader settings.
func (c *Client) Config() UploaderConfig {
	return c.config
}
