package s3_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/statreg/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/statreg/pkg/batch/adapter/storage/s3"
)

func TestNewS3AdapterRequiresEndpoint(t *testing.T) {
	_, err := s3.NewS3Adapter(context.Background(), storageConfig.StorageConfig{Type: "s3"}, "imports")
	assert.Error(t, err)

	conn, err := s3.NewS3Adapter(context.Background(), storageConfig.StorageConfig{
		Type:            "s3",
		Endpoint:        "localhost:9000",
		BucketName:      "uploads",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	}, "imports")
	require.NoError(t, err)
	assert.Equal(t, "s3", conn.Type())
	assert.Equal(t, "uploads", conn.Config().BucketName)
	assert.NoError(t, conn.Close())
}
