package sql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

// insertBatchSize caps the rows of one multi-row INSERT.
const insertBatchSize = 200

// GORMUploadLogRepository implements repository.UploadLogRepository.
type GORMUploadLogRepository struct {
	db *gorm.DB
}

var _ repository.UploadLogRepository = (*GORMUploadLogRepository)(nil)

// NewGORMUploadLogRepository creates an upload log repository on db.
func NewGORMUploadLogRepository(db *gorm.DB) *GORMUploadLogRepository {
	return &GORMUploadLogRepository{db: db}
}

// AppendBatch implements repository.UploadLogRepository.
func (r *GORMUploadLogRepository) AppendBatch(ctx context.Context, entries []*model.UploadLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
	}
	if err := r.db.WithContext(ctx).CreateInBatches(entries, insertBatchSize).Error; err != nil {
		return exception.NewBatchError("GORMUploadLogRepository.AppendBatch", "", fmt.Sprintf("failed to append %d log entries", len(entries)), err, false, true)
	}
	return nil
}

// ListByJob implements repository.UploadLogRepository.
func (r *GORMUploadLogRepository) ListByJob(ctx context.Context, jobID string) ([]model.UploadLogEntry, error) {
	var entries []model.UploadLogEntry
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, exception.NewBatchError("GORMUploadLogRepository.ListByJob", "", fmt.Sprintf("failed to list log entries of job %s", jobID), err, false, true)
	}
	return entries, nil
}

// DeleteByJob implements repository.UploadLogRepository.
func (r *GORMUploadLogRepository) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model.UploadLogEntry{})
	if res.Error != nil {
		return 0, exception.NewBatchError("GORMUploadLogRepository.DeleteByJob", "", fmt.Sprintf("failed to delete log entries of job %s", jobID), res.Error, false, true)
	}
	return res.RowsAffected, nil
}
