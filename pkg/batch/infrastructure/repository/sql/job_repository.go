// Package sql implements the import pipeline repositories on GORM. The schema is
// owned by the migrations in component/migration.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// claimCandidates is how many Pending jobs one ClaimNext call tries before giving up.
const claimCandidates = 5

// GORMJobRepository implements repository.JobRepository.
type GORMJobRepository struct {
	db *gorm.DB
}

var _ repository.JobRepository = (*GORMJobRepository)(nil)

// NewGORMJobRepository creates a job repository on db.
func NewGORMJobRepository(db *gorm.DB) *GORMJobRepository {
	return &GORMJobRepository{db: db}
}

// Enqueue implements repository.JobRepository. A missing ID is generated and the
// status is forced to Pending.
func (r *GORMJobRepository) Enqueue(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	job.Status = model.JobStatusPending
	job.StartedAt, job.EndedAt = nil, nil
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return exception.NewBatchError("GORMJobRepository.Enqueue", "", fmt.Sprintf("failed to enqueue job %s", job.ID), err, false, true)
	}
	return nil
}

// Get implements repository.JobRepository.
func (r *GORMJobRepository) Get(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", repository.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, exception.NewBatchError("GORMJobRepository.Get", "", fmt.Sprintf("failed to load job %s", id), err, false, true)
	}
	return &job, nil
}

// List implements repository.JobRepository.
func (r *GORMJobRepository) List(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	q := r.db.WithContext(ctx).Order("enqueued_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []model.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, exception.NewBatchError("GORMJobRepository.List", "", "failed to list jobs", err, false, true)
	}
	return jobs, nil
}

// ClaimNext implements repository.JobRepository.
//
// Candidates are read oldest first and claimed with a conditional update
// (status still Pending). A zero row count means another worker won that job,
// so the next candidate is tried. No row locks are held between the two statements.
func (r *GORMJobRepository) ClaimNext(ctx context.Context, now time.Time) (*model.Job, error) {
	const op = "GORMJobRepository.ClaimNext"
	now = now.UTC()

	var candidates []model.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("enqueued_at ASC, id ASC").
		Limit(claimCandidates).
		Find(&candidates).Error
	if err != nil {
		return nil, exception.NewBatchError(op, "", "failed to read pending jobs", err, false, true)
	}

	for i := range candidates {
		job := &candidates[i]
		res := r.db.WithContext(ctx).Model(&model.Job{}).
			Where("id = ? AND status = ?", job.ID, model.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     model.JobStatusInProgress,
				"started_at": now,
			})
		if res.Error != nil {
			return nil, exception.NewBatchError(op, "", fmt.Sprintf("failed to claim job %s", job.ID), res.Error, false, true)
		}
		if res.RowsAffected == 1 {
			job.Status = model.JobStatusInProgress
			job.StartedAt = &now
			return job, nil
		}
		logger.Debugf("Job %s was claimed by another worker, trying the next one.", job.ID)
	}
	return nil, nil
}

// Finish implements repository.JobRepository.
func (r *GORMJobRepository) Finish(ctx context.Context, id string, status model.JobStatus, note string, endedAt time.Time) error {
	const op = "GORMJobRepository.Finish"
	if !status.IsTerminal() {
		return exception.NewBatchError(op, "", fmt.Sprintf("status %s is not terminal", status), nil, false, false)
	}
	res := r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusInProgress).
		Updates(map[string]interface{}{
			"status":   status,
			"note":     note,
			"ended_at": endedAt.UTC(),
		})
	if res.Error != nil {
		return exception.NewBatchError(op, "", fmt.Sprintf("failed to finish job %s", id), res.Error, false, true)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", repository.ErrJobNotInProgress, id)
	}
	return nil
}

// ResetExpired implements repository.JobRepository.
func (r *GORMJobRepository) ResetExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Job{}).
		Where("status = ? AND started_at < ?", model.JobStatusInProgress, cutoff.UTC()).
		Updates(map[string]interface{}{
			"status":     model.JobStatusPending,
			"started_at": nil,
		})
	if res.Error != nil {
		return 0, exception.NewBatchError("GORMJobRepository.ResetExpired", "", "failed to reset expired jobs", res.Error, false, true)
	}
	return res.RowsAffected, nil
}

// Requeue implements repository.JobRepository.
func (r *GORMJobRepository) Requeue(ctx context.Context, id string) error {
	const op = "GORMJobRepository.Requeue"
	res := r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, []model.JobStatus{
			model.JobStatusDataLoadCompleted,
			model.JobStatusDataLoadCompletedPartially,
			model.JobStatusDataLoadFailed,
		}).
		Updates(map[string]interface{}{
			"status":      model.JobStatusPending,
			"note":        "",
			"started_at":  nil,
			"ended_at":    nil,
			"enqueued_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return exception.NewBatchError(op, "", fmt.Sprintf("failed to requeue job %s", id), res.Error, false, true)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", repository.ErrJobNotTerminal, id)
}
