// Package s3 implements the blob.Storage interface for AWS S3 and
// S3-compatible object stores such as MinIO.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/blob"
	"github.com/ebogdum/sharefs/config"
	"github.com/ebogdum/sharefs/metrics"
)

// S3Adapter implements the blob.Storage interface for AWS S3
type S3Adapter struct {
	client               *s3.S3
	uploader             *s3manager.Uploader
	bucketName           string
	serverSideEncryption string
	kmsKeyID             string
	logger               *zap.Logger
}

// NewS3Adapter creates a new S3 blob storage adapter
func NewS3Adapter(cfg config.BlobConfig, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)
	}

	// Custom endpoint for MinIO compatibility
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	// Verify bucket access
	if _, err := client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3BucketName),
	}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3BucketName, err)
	}

	return &S3Adapter{
		client:               client,
		uploader:             s3manager.NewUploaderWithClient(client),
		bucketName:           cfg.S3BucketName,
		serverSideEncryption: cfg.S3ServerSideEncryption,
		kmsKeyID:             cfg.S3KMSKeyID,
		logger:               logger,
	}, nil
}

// Close closes any resources used by the S3 adapter
func (a *S3Adapter) Close() error {
	return nil
}

// Put stores an object under the given reference
func (a *S3Adapter) Put(ctx context.Context, ref string, reader io.Reader, size int64, contentType string) error {
	metrics.BlobOpsTotal.WithLabelValues("s3", "put").Inc()

	input := &s3manager.UploadInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(ref),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if a.serverSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == "aws:kms" && a.kmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}

	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		metrics.BlobOpErrorsTotal.WithLabelValues("s3", "put").Inc()
		return fmt.Errorf("failed to put object to S3: %w", err)
	}

	a.logger.Debug("Object stored in S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", ref),
		zap.Int64("size", size))
	return nil
}

// Get opens an object for reading
func (a *S3Adapter) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	metrics.BlobOpsTotal.WithLabelValues("s3", "get").Inc()

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(ref),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, blob.ErrNotFound
		}
		metrics.BlobOpErrorsTotal.WithLabelValues("s3", "get").Inc()
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

// Delete removes an object
func (a *S3Adapter) Delete(ctx context.Context, ref string) error {
	metrics.BlobOpsTotal.WithLabelValues("s3", "delete").Inc()

	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(ref),
	})
	if err != nil && !isS3NotFound(err) {
		metrics.BlobOpErrorsTotal.WithLabelValues("s3", "delete").Inc()
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	a.logger.Debug("Object deleted from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", ref))
	return nil
}

// PresignGet mints a presigned GET URL for the object. Signing happens
// locally; there is no round trip to S3.
func (a *S3Adapter) PresignGet(ctx context.Context, ref, filename string, ttl time.Duration) (string, error) {
	metrics.BlobOpsTotal.WithLabelValues("s3", "presign").Inc()

	input := &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(ref),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(
			fmt.Sprintf("attachment; filename=%q", filename))
	}

	req, _ := a.client.GetObjectRequest(input)
	url, err := req.Presign(ttl)
	if err != nil {
		metrics.BlobOpErrorsTotal.WithLabelValues("s3", "presign").Inc()
		return "", fmt.Errorf("failed to presign GET request: %w", err)
	}
	return url, nil
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "NoSuchKey") ||
		strings.Contains(err.Error(), "NotFound"))
}
