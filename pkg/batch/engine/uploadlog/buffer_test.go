package uploadlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/engine/uploadlog"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

func entry(pos int) *model.UploadLogEntry {
	return &model.UploadLogEntry{JobID: "job-1", Position: pos, Status: model.LogStatusDone}
}

func TestBuffer_FlushesWhenFull(t *testing.T) {
	ctx := context.Background()
	repo := &test.MockUploadLogRepository{}
	repo.On("AppendBatch", mock.Anything, mock.MatchedBy(func(es []*model.UploadLogEntry) bool { return len(es) == 2 })).Return(nil).Once()
	repo.On("AppendBatch", mock.Anything, mock.MatchedBy(func(es []*model.UploadLogEntry) bool { return len(es) == 1 })).Return(nil).Once()

	b := uploadlog.NewBuffer(repo, 2, nil)
	require.NoError(t, b.Append(ctx, entry(1)))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Append(ctx, entry(2)))
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Append(ctx, entry(3)))
	require.NoError(t, b.Flush(ctx))
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 3, b.Written())
	repo.AssertExpectations(t)
}

func TestBuffer_KeepsEntriesOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := &test.MockUploadLogRepository{}
	repo.On("AppendBatch", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
	repo.On("AppendBatch", mock.Anything, mock.MatchedBy(func(es []*model.UploadLogEntry) bool { return len(es) == 2 })).Return(nil).Once()

	b := uploadlog.NewBuffer(repo, 1, nil)
	assert.Error(t, b.Append(ctx, entry(1)))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Append(ctx, entry(2)))
	assert.Equal(t, 2, b.Written())
	repo.AssertExpectations(t)
}

func TestEntryBuilder(t *testing.T) {
	rec := model.Record{Position: 4, Fields: []model.Field{{Name: "id", Value: "9"}, {Name: "name", Value: ""}}}
	d := &model.Draft{ExternalID: "9", Values: map[string]any{}, Existing: &model.StatUnit{UnitFields: model.UnitFields{Name: "Stored"}}}
	regID := uint64(77)
	now := time.Now()

	e := uploadlog.EntryBuilder{JobID: "job-1"}.Build(rec, d, model.LogStatusWarning, "NotSavedByPriority",
		map[string][]string{"email": {"EmailIsInvalid"}}, []string{"DuplicatesFound: 3"}, &regID, now, now)

	assert.Equal(t, "job-1", e.JobID)
	assert.Equal(t, 4, e.Position)
	assert.Equal(t, `{"id":"9","name":""}`, e.SerializedRaw)
	assert.Equal(t, "9", e.ExternalID)
	assert.Equal(t, "Stored", e.UnitName)
	assert.Equal(t, `{"email":["EmailIsInvalid"]}`, e.Errors)
	assert.Equal(t, `["DuplicatesFound: 3"]`, e.Summary)
	assert.Equal(t, &regID, e.RegID)

	e = uploadlog.EntryBuilder{JobID: "job-1"}.Build(rec, nil, model.LogStatusError, "ExternalIdIsRequired", nil, nil, nil, now, now)
	assert.Empty(t, e.Errors)
	assert.Empty(t, e.ExternalID)
}
