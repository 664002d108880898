package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

func TestUploadLogRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMUploadLogRepository(test.NewSQLiteDB(t))
	now := time.Now().UTC()

	entry := func(jobID string, pos int, status model.LogStatus) *model.UploadLogEntry {
		return &model.UploadLogEntry{JobID: jobID, Position: pos, StartedAt: now, EndedAt: now, Status: status}
	}
	require.NoError(t, repo.AppendBatch(ctx, []*model.UploadLogEntry{
		entry("job-1", 3, model.LogStatusDone),
		entry("job-1", 1, model.LogStatusDone),
		entry("job-2", 1, model.LogStatusWarning),
	}))
	require.NoError(t, repo.AppendBatch(ctx, []*model.UploadLogEntry{entry("job-1", 2, model.LogStatusError)}))
	require.NoError(t, repo.AppendBatch(ctx, nil))

	entries, err := repo.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, model.LogStatusError, entries[1].Status)

	entries, err = repo.ListByJob(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadLogRepository_DeleteByJob(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMUploadLogRepository(test.NewSQLiteDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.AppendBatch(ctx, []*model.UploadLogEntry{
		{JobID: "job-1", Position: 1, StartedAt: now, EndedAt: now, Status: model.LogStatusDone},
		{JobID: "job-1", Position: 2, StartedAt: now, EndedAt: now, Status: model.LogStatusDone},
		{JobID: "job-2", Position: 1, StartedAt: now, EndedAt: now, Status: model.LogStatusDone},
	}))

	n, err := repo.DeleteByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	entries, err := repo.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = repo.ListByJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	n, err = repo.DeleteByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
