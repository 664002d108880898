package test

import (
	"time"

	"github.com/google/uuid"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// JobOption customizes a job built by NewTestJob.
type JobOption func(*model.Job)

// NewTestJob returns a Pending legal-unit CSV job mapping id and name, trusted and
// allowed to create and alter.
func NewTestJob(opts ...JobOption) *model.Job {
	job := &model.Job{
		ID:                uuid.NewString(),
		FileName:          "units.csv",
		FilePath:          "units.csv",
		UnitType:          model.UnitTypeLegalUnit,
		Mapping:           model.Mapping{{Source: "id", Target: model.FieldExternalID}, {Source: "name", Target: "name"}},
		SkipLines:         1,
		AllowedOperations: model.OperationCreateAndAlter,
		Priority:          model.PriorityTrusted,
		Status:            model.JobStatusPending,
		UserID:            "tester",
		EnqueuedAt:        time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// WithFile sets the file name and path.
func WithFile(name string) JobOption {
	return func(j *model.Job) { j.FileName, j.FilePath = name, name }
}

// WithMapping replaces the mapping.
func WithMapping(m model.Mapping) JobOption {
	return func(j *model.Job) { j.Mapping = m }
}

// WithOperations sets the allowed operations.
func WithOperations(op model.AllowedOperation) JobOption {
	return func(j *model.Job) { j.AllowedOperations = op }
}

// WithPriority sets the data source priority.
func WithPriority(p model.Priority) JobOption {
	return func(j *model.Job) { j.Priority = p }
}

// WithEnqueuedAt sets the enqueue time.
func WithEnqueuedAt(t time.Time) JobOption {
	return func(j *model.Job) { j.EnqueuedAt = t.UTC() }
}

// NewTimePtr returns a pointer to a time.Time value.
func NewTimePtr(t time.Time) *time.Time {
	return &t
}
