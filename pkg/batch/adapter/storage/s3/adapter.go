// Package s3 provides an S3-compatible storage backend on minio-go.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/statreg/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/statreg/pkg/batch/core/config"
)

// ProviderType defines the type identifier for this backend.
const ProviderType = "s3"

type s3Adapter struct {
	client *minio.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*s3Adapter)(nil)

// NewS3Adapter creates a minio client with static credentials.
func NewS3Adapter(_ context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 storage adapter '%s': endpoint must be specified", name)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &s3Adapter{client: client, cfg: cfg, name: name}, nil
}

func (a *s3Adapter) Type() string                         { return ProviderType }
func (a *s3Adapter) Name() string                         { return a.name }
func (a *s3Adapter) Config() storageConfig.StorageConfig { return a.cfg }
func (a *s3Adapter) Close() error                         { return nil }

func (a *s3Adapter) bucket(name string) string {
	if name == "" {
		return a.cfg.BucketName
	}
	return name
}

// Upload implements storage.StorageExecutor. The size is unknown, so minio
// streams the body as a multipart upload.
func (a *s3Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket(bucket), objectName, data, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Download implements storage.StorageExecutor. GetObject is lazy, so the object is
// stat'ed first to surface a missing key here rather than on the first Read.
func (a *s3Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucket(bucket), objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", storageAdapter.ErrObjectNotFound, objectName)
		}
		return nil, fmt.Errorf("s3 stat object: %w", err)
	}
	return obj, nil
}

// ListObjects implements storage.StorageExecutor.
func (a *s3Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for info := range a.client.ListObjects(ctx, a.bucket(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return fmt.Errorf("s3 list objects: %w", info.Err)
		}
		if err := fn(info.Key); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObject implements storage.StorageExecutor.
func (a *s3Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	if err := a.client.RemoveObject(ctx, a.bucket(bucket), objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 remove object: %w", err)
	}
	return nil
}

// NewS3Provider creates the S3 StorageProvider.
func NewS3Provider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewCachingProvider(cfg, ProviderType, NewS3Adapter)
}

// Module adds the S3 provider to the storage_providers group.
var Module = fx.Provide(fx.Annotate(
	NewS3Provider,
	fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
))
