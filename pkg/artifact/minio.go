package artifact

import (
	"bytes"
	"context"
	"io"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/depsight/depsight/pkg/errors"
)

// MinioStore keeps artifacts in an S3-compatible object store. Reports
// survive process restarts when this backend is configured.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioConfig carries the object-store connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "connecting to object store")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "checking artifact bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "creating artifact bucket")
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "storing artifact %q", key)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeNetwork, err, "fetching artifact %q", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, "", errors.New(errors.ErrCodeNotFound, "artifact %q not found", key)
		}
		return nil, "", errors.Wrap(errors.ErrCodeNetwork, err, "reading artifact %q", key)
	}

	stat, err := obj.Stat()
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeNetwork, err, "artifact %q metadata", key)
	}
	return data, stat.ContentType, nil
}

func (s *MinioStore) Close() error { return nil }
