package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectStorage exchanges bare storage keys for signed download URLs and
// uploads screenshot proofs. Media rows in a private bucket reference their
// object key only; the device signs on demand so URLs never go stale in the
// cache.
type ObjectStorage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	signTTL   time.Duration
	logger    *zap.Logger
}

// NewObjectStorage creates an S3-backed storage client. endpoint overrides
// the AWS default for S3-compatible backends.
func NewObjectStorage(ctx context.Context, bucket, region, endpoint string, signTTL time.Duration, logger *zap.Logger) (*ObjectStorage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &ObjectStorage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		signTTL:   signTTL,
		logger:    logger.Named("object-storage"),
	}, nil
}

// Resolve exchanges a bucket-relative key for a time-limited signed URL.
// Absolute URLs pass through untouched.
func (o *ObjectStorage) Resolve(ctx context.Context, rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL, nil
	}

	signed, err := o.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(strings.TrimPrefix(rawURL, "/")),
	}, s3.WithPresignExpires(o.signTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object url: %w", err)
	}
	return signed.URL, nil
}

// UploadScreenshot overwrites the device's screenshot object and returns its
// bucket-relative path. One object per screen keeps the bucket bounded.
func (o *ObjectStorage) UploadScreenshot(ctx context.Context, screenUUID string, jpeg []byte) (string, error) {
	key := fmt.Sprintf("screenshots/%s.jpg", screenUUID)

	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jpeg),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload screenshot: %w", err)
	}

	o.logger.Info("screenshot uploaded",
		zap.String("key", key),
		zap.Int("bytes", len(jpeg)),
	)
	return key, nil
}
