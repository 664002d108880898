package ports

import (
	"context"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// Notifier tells external systems that a job reached a terminal status.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, summary model.JobSummary) error
}
