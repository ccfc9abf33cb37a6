// Package s3 implements the blob store contract over AWS S3 (or any
// S3-compatible endpoint such as minio).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/carousel-labs/pricedex/internal/db"
)

// Compile-time check: BlobStore implements db.BlobStore.
var _ db.BlobStore = (*BlobStore)(nil)

// Config holds S3 connection parameters.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string
}

// BlobStore reads embedding payloads from one S3 bucket.
type BlobStore struct {
	client *s3.Client
	bucket string
}

// New creates an S3 blob store using the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// NewWithClient wraps an existing S3 client. Intended for tests.
func NewWithClient(client *s3.Client, bucket string) *BlobStore {
	return &BlobStore{client: client, bucket: bucket}
}

// GetObject fetches one object. A missing key is db.ErrObjectNotFound.
func (b *BlobStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, db.ErrObjectNotFound
		}
		return nil, &db.Error{Op: db.OpGetObject, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &db.Error{Op: db.OpGetObject, Err: err}
	}
	return data, nil
}
