package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docverify/internal/platform/config"
)

const (
	pdfContentType  = "application/pdf"
	presignedURLTTL = 15 * time.Minute
)

// MinIOStore keeps artifacts in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// NewMinIOStore connects and creates the bucket when it does not exist.
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket, ttl: presignedURLTTL}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) Put(ctx context.Context, documentID string, pdf []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(documentID), bytes.NewReader(pdf), int64(len(pdf)),
		minio.PutObjectOptions{
			ContentType:  pdfContentType,
			UserMetadata: map[string]string{"Document-ID": documentID},
		})
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(documentID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (s *MinIOStore) URL(ctx context.Context, documentID string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", `attachment; filename="`+documentID+`.pdf"`)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(documentID), s.ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign artifact url: %w", err)
	}
	return u.String(), nil
}

// Health checks that the bucket is reachable.
func (s *MinIOStore) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
