// Package storage defines the storage connections uploaded import files are read
// from. Backends (local, gcs, s3) live in subpackages.
package storage

import (
	"context"
	"errors"
	"io"

	storageConfig "github.com/tigerroll/statreg/pkg/batch/adapter/storage/config"
)

// ErrObjectNotFound is returned by Download when the object does not exist.
var ErrObjectNotFound = errors.New("storage object not found")

// StorageExecutor defines generic storage operations. An empty bucket means the
// connection's configured bucket.
type StorageExecutor interface {
	// Upload stores data under objectName.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is an open, named storage connection.
type StorageConnection interface {
	StorageExecutor
	Name() string
	Type() string
	Config() storageConfig.StorageConfig
	Close() error
}

// StorageProvider opens and caches the connections of one backend type.
type StorageProvider interface {
	Type() string
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	CloseAll() error
}

// StorageConnectionResolver resolves a named storage connection.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the Fx value group collecting StorageProvider implementations.
const StorageProviderGroup = "storage_providers"
