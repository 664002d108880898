// Package gcs provides a Google Cloud Storage backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/fx"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/statreg/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/statreg/pkg/batch/core/config"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// ProviderType defines the type identifier for this backend.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *gcstorage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a client authenticated with cfg.CredentialsFile, or with
// application default credentials when it is empty. A non-empty Endpoint points
// the client at an emulator.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

func (a *gcsAdapter) Type() string                         { return ProviderType }
func (a *gcsAdapter) Name() string                         { return a.name }
func (a *gcsAdapter) Config() storageConfig.StorageConfig { return a.cfg }

func (a *gcsAdapter) Close() error {
	logger.Debugf("Closing GCS storage connection '%s'.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) bucket(name string) *gcstorage.BucketHandle {
	if name == "" {
		name = a.cfg.BucketName
	}
	return a.client.Bucket(name)
}

// Upload implements storage.StorageExecutor.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs upload %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs upload %s: %w", objectName, err)
	}
	return nil
}

// Download implements storage.StorageExecutor.
func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", storageAdapter.ErrObjectNotFound, objectName)
		}
		return nil, fmt.Errorf("gcs download %s: %w", objectName, err)
	}
	return r, nil
}

// ListObjects implements storage.StorageExecutor.
func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.bucket(bucket).Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// DeleteObject implements storage.StorageExecutor.
func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.bucket(bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", objectName, err)
	}
	return nil
}

// NewGCSProvider creates the GCS StorageProvider.
func NewGCSProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewCachingProvider(cfg, ProviderType, NewGCSAdapter)
}

// Module adds the GCS provider to the storage_providers group.
var Module = fx.Provide(fx.Annotate(
	NewGCSProvider,
	fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
))
