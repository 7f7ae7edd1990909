package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/fanportal/portal-service/internal/config"
)

// ObjectMeta describes an upload.
type ObjectMeta struct {
	Name        string
	ContentType string
}

// StoredObject is the result of a successful upload.
type StoredObject struct {
	URL  string
	Size int64
	Name string
}

// ObjectStore persists uploaded files (avatars).
type ObjectStore interface {
	PutObject(ctx context.Context, data []byte, meta ObjectMeta) (*StoredObject, error)
}

// S3Store implements ObjectStore on S3-compatible storage.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client from configuration. Works against AWS or any
// S3-compatible endpoint (MinIO) via S3_BASE_ENDPOINT.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func storageKey(name string) string {
	d := time.Now()
	return fmt.Sprintf("avatars/%d/%d/%d/%s-%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), name)
}

func (s *S3Store) PutObject(ctx context.Context, data []byte, meta ObjectMeta) (*StoredObject, error) {
	key := storageKey(meta.Name)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, err
	}

	return &StoredObject{
		URL:  fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key),
		Size: int64(len(data)),
		Name: key,
	}, nil
}
