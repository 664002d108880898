package ports

import (
	"context"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// ProgressTracker publishes the per-job progress so that submitters can watch a
// running import. Reports are best effort: a failing tracker never fails a job.
type ProgressTracker interface {
	Report(ctx context.Context, jobID string, progress model.Progress) error
	Get(ctx context.Context, jobID string) (model.Progress, bool, error)
	Clear(ctx context.Context, jobID string) error
}
