package awsclient

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the S3 surface used to read plan objects.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectFetcher implements plan.ObjectFetcher.
type ObjectFetcher struct {
	Client S3API
	// MaxBytes bounds the object size read; zero means 64 MiB.
	MaxBytes int64
}

// NewObjectFetcher returns an S3-backed fetcher.
func NewObjectFetcher(cfg aws.Config) *ObjectFetcher {
	return &ObjectFetcher{Client: s3.NewFromConfig(cfg)}
}

// Fetch reads bucket/key.
func (f *ObjectFetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	return io.ReadAll(io.LimitReader(out.Body, limit))
}
