package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
)

// Span represents a single operation or unit of work in distributed tracing.
type Span interface {
	// End sets the end time of the current span and finishes the span.
	End()
}

// MetricRecorder is an abstract interface for recording metrics of the import pipeline.
// It lets the worker stay independent of the metrics backend (Prometheus, OpenTelemetry).
type MetricRecorder interface {
	// RecordJobStart records that a worker claimed a job.
	RecordJobStart(ctx context.Context, job *model.Job)

	// RecordJobEnd records the terminal status of a job and how long it ran.
	RecordJobEnd(ctx context.Context, job *model.Job, status model.JobStatus, duration time.Duration)

	// RecordRecordOutcome records the outcome of one record.
	// code is the first error code of a failed record, or "" for Done.
	RecordRecordOutcome(ctx context.Context, unitType model.UnitType, status model.LogStatus, code string)

	// RecordLogFlush records one batch written to the upload log store.
	RecordLogFlush(ctx context.Context, count int, err error)

	// RecordSweep records how many expired claims a sweep returned to the queue.
	RecordSweep(ctx context.Context, reset int64)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "parse", "bulk_flush").
	// tags: Additional labels. Example: `{"format": "csv"}`
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
