// Package queue runs the import queue: the worker that claims and processes
// jobs, the sweeper that recovers abandoned claims, and the scheduler that
// keeps both running until shutdown.
package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/engine/importer"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

const moduleName = "queue"

// finishTimeout bounds the status write and notification after processing.
const finishTimeout = 30 * time.Second

// JobProcessor imports the file of one claimed job.
type JobProcessor interface {
	Process(ctx context.Context, job *model.Job) importer.Report
}

// WorkerParams defines the dependencies of NewWorker.
type WorkerParams struct {
	fx.In
	Jobs      repository.JobRepository
	Processor JobProcessor
	Notifier  ports.Notifier
	Recorder  metrics.MetricRecorder
	Cfg       *config.WorkerConfig
}

// Worker claims Pending jobs one at a time and drives them to a terminal status.
type Worker struct {
	jobs      repository.JobRepository
	processor JobProcessor
	notifier  ports.Notifier
	recorder  metrics.MetricRecorder
	interval  time.Duration
	now       func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		jobs:      p.Jobs,
		processor: p.Processor,
		notifier:  p.Notifier,
		recorder:  p.Recorder,
		interval:  p.Cfg.PollInterval,
		now:       time.Now,
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was
// claimed. An error is returned only when the queue itself cannot be read.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNext(ctx, w.now().UTC())
	if err != nil {
		if exception.IsCancellation(err) {
			return false, nil
		}
		return false, exception.NewJobError(moduleName, "", "failed to claim next job", err)
	}
	if job == nil {
		return false, nil
	}

	log := logger.WithFields(map[string]interface{}{"job_id": job.ID, "file": job.FileName, "unit_type": job.UnitType})
	log.Infof("Claimed job.")
	w.recorder.RecordJobStart(ctx, job)
	started := w.now()

	report := w.processor.Process(ctx, job)
	if report.Interrupted() {
		// The claim stays InProgress; the sweeper returns it to the queue.
		log.Warnf("Job interrupted after %d of %d records.", report.Progress.Processed, report.Progress.Total)
		return true, nil
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	ended := w.now().UTC()
	if err := w.jobs.Finish(fctx, job.ID, report.Status, report.Note, ended); err != nil {
		if errors.Is(err, repository.ErrJobNotInProgress) {
			log.Warnf("Job was reclaimed before it finished, dropping status %s.", report.Status)
			return true, nil
		}
		log.Errorf("Failed to write status %s: %v", report.Status, err)
		return true, nil
	}
	w.recorder.RecordJobEnd(fctx, job, report.Status, ended.Sub(started))
	log.Infof("Job finished with status %s (%d done, %d warnings, %d errors).",
		report.Status, report.Progress.Done, report.Progress.Warnings, report.Progress.Errors)

	summary := model.JobSummary{
		JobID:     job.ID,
		FileName:  job.FileName,
		UnitType:  job.UnitType,
		UserID:    job.UserID,
		Status:    report.Status,
		Note:      report.Note,
		Progress:  report.Progress,
		StartedAt: job.StartedAt,
		EndedAt:   ended,
	}
	if err := w.notifier.NotifyJobCompletion(fctx, summary); err != nil {
		log.Warnf("Completion notification failed: %v", err)
	}
	return true, nil
}

// Run polls the queue until ctx is cancelled. After a processed job it polls
// again immediately; an empty queue or a queue error waits one interval.
func (w *Worker) Run(ctx context.Context) error {
	logger.Infof("Worker started, polling every %s.", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			logger.Infof("Worker stopped.")
			return nil
		}
		claimed, err := w.RunOnce(ctx)
		if err != nil {
			logger.Errorf("%s", exception.ExtractErrorMessage(err))
		}
		if claimed {
			continue
		}
		select {
		case <-ctx.Done():
			logger.Infof("Worker stopped.")
			return nil
		case <-ticker.C:
		}
	}
}
