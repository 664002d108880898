// Package repository declares the stores the import pipeline reads and writes.
// Implementations live under infrastructure/repository.
package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("import job not found")

// ErrJobNotTerminal is returned when requeueing a job that has not finished.
var ErrJobNotTerminal = errors.New("import job is not in a terminal state")

// ErrJobNotInProgress is returned when finishing a job this worker no longer owns,
// for instance after the sweeper returned it to the queue.
var ErrJobNotInProgress = errors.New("import job is not in progress")

// ErrDuplicateUnit is returned when an insert hits the (unit type, external id) unique index.
var ErrDuplicateUnit = errors.New("stat unit already exists")

// ErrStaleUnit is returned when an update loses its version check.
var ErrStaleUnit = errors.New("stat unit was modified concurrently")

// JobRepository owns the import queue. The claim is the only operation that needs
// mutual exclusion and is implemented as a compare-and-set on the status column.
type JobRepository interface {
	// Enqueue stores a new Pending job.
	Enqueue(ctx context.Context, job *model.Job) error

	// Get loads a job by id.
	Get(ctx context.Context, id string) (*model.Job, error)

	// List returns jobs ordered by enqueue time, newest first. An empty status lists all.
	List(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)

	// ClaimNext moves the oldest Pending job to InProgress and returns it.
	// It returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context, now time.Time) (*model.Job, error)

	// Finish writes a terminal status and note. Only InProgress jobs are finished;
	// anything else yields ErrJobNotInProgress.
	Finish(ctx context.Context, id string, status model.JobStatus, note string, endedAt time.Time) error

	// ResetExpired returns InProgress jobs claimed before cutoff to Pending.
	ResetExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// Requeue puts a terminal job back to Pending.
	Requeue(ctx context.Context, id string) error
}

// UnitRepository is the statistical-unit entity store.
type UnitRepository interface {
	// FindByExternalID returns the unit, or (nil, nil) when none exists.
	FindByExternalID(ctx context.Context, unitType model.UnitType, externalID string) (*model.StatUnit, error)

	// FindDuplicates returns units of the same type and a different external id that
	// share the name or the (non-empty) tax registration id.
	FindDuplicates(ctx context.Context, unitType model.UnitType, externalID, name, taxRegID string) ([]model.StatUnit, error)

	// Insert creates a unit. A unique-index conflict is reported as ErrDuplicateUnit.
	Insert(ctx context.Context, unit *model.StatUnit) error

	// UpdateWithHistory writes history then updates unit, guarded by expectedVersion.
	// A lost version check is reported as ErrStaleUnit.
	UpdateWithHistory(ctx context.Context, unit *model.StatUnit, history *model.StatUnitHistory, expectedVersion int) error

	// BulkUpsert writes all histories and upserts all units in one transaction.
	BulkUpsert(ctx context.Context, units []*model.StatUnit, histories []*model.StatUnitHistory) error
}

// UploadLogRepository is the append-only store of per-record outcomes.
type UploadLogRepository interface {
	// AppendBatch inserts entries in one round-trip.
	AppendBatch(ctx context.Context, entries []*model.UploadLogEntry) error

	// ListByJob returns a job's entries ordered by position.
	ListByJob(ctx context.Context, jobID string) ([]model.UploadLogEntry, error)

	// DeleteByJob removes the entries of an earlier attempt of the job.
	DeleteByJob(ctx context.Context, jobID string) (int64, error)
}
