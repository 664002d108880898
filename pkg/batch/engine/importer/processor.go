// Package importer drives one import job through parse, map, analyze, save and
// log, and reports the terminal status the queue worker writes back.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/engine/analysis"
	"github.com/tigerroll/statreg/pkg/batch/engine/mapper"
	"github.com/tigerroll/statreg/pkg/batch/engine/parser"
	"github.com/tigerroll/statreg/pkg/batch/engine/save"
	"github.com/tigerroll/statreg/pkg/batch/engine/uploadlog"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

const moduleName = "importer"

// progressEvery is how many emitted entries pass between two progress reports.
const progressEvery = 50

// finalFlushTimeout bounds the last log flush of an interrupted job.
const finalFlushTimeout = 10 * time.Second

// Report is the result of one Process call.
type Report struct {
	// Status is terminal, except InProgress for a job interrupted by shutdown.
	Status   model.JobStatus
	Note     string
	Progress model.Progress
}

// Interrupted reports whether processing stopped before a terminal status.
func (r Report) Interrupted() bool { return !r.Status.IsTerminal() }

// ProcessorParams defines the dependencies of NewProcessor.
type ProcessorParams struct {
	fx.In
	Storage  storageAdapter.StorageConnectionResolver
	Units    repository.UnitRepository
	Logs     repository.UploadLogRepository
	Engine   *analysis.Engine
	Tracker  ports.ProgressTracker
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Cfg      *config.ImportConfig
}

// Processor runs import jobs. It holds no per-job state and may serve several
// workers.
type Processor struct {
	storage  storageAdapter.StorageConnectionResolver
	units    repository.UnitRepository
	logs     repository.UploadLogRepository
	engine   *analysis.Engine
	tracker  ports.ProgressTracker
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	cfg      config.ImportConfig
	now      func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(p ProcessorParams) *Processor {
	return &Processor{
		storage:  p.Storage,
		units:    p.Units,
		logs:     p.Logs,
		engine:   p.Engine,
		tracker:  p.Tracker,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		cfg:      *p.Cfg,
		now:      time.Now,
	}
}

// Process imports the file of job. It never returns a Go error: job-level
// failures become a DataLoadFailed report with a note.
func (p *Processor) Process(ctx context.Context, job *model.Job) Report {
	ctx, end := p.tracer.StartJobSpan(ctx, job)
	defer end()

	if err := p.clearLog(ctx, job); err != nil {
		return p.failed(ctx, job, err)
	}
	records, err := p.load(ctx, job)
	if err != nil {
		return p.failed(ctx, job, err)
	}
	m, err := mapper.NewForJob(job, p.units)
	if err != nil {
		return p.failed(ctx, job, err)
	}

	run := &jobRun{
		p:        p,
		job:      job,
		mapper:   m,
		saver:    save.NewManager(p.units, job, p.cfg.BulkSize, p.recorder),
		logs:     uploadlog.NewBuffer(p.logs, p.cfg.LogBufferSize, p.recorder),
		builder:  uploadlog.EntryBuilder{JobID: job.ID},
		opts:     analysis.Options{JobID: job.ID, MappedFields: m.Targets()},
		progress: model.Progress{Total: len(records)},
		byPos:    map[int]*queued{},
	}
	return run.execute(ctx, records)
}

// clearLog drops the entries of an interrupted or requeued attempt, the job is
// processed again from its first record.
func (p *Processor) clearLog(ctx context.Context, job *model.Job) error {
	n, err := p.logs.DeleteByJob(ctx, job.ID)
	if err != nil {
		if exception.IsCancellation(err) {
			return err
		}
		return exception.NewJobError(moduleName, exception.CodeLogWriteFailed, "failed to clear the upload log", err)
	}
	if n > 0 {
		logger.Infof("Removed %d upload log entries of an earlier attempt of job %s.", n, job.ID)
	}
	return nil
}

func (p *Processor) load(ctx context.Context, job *model.Job) ([]model.Record, error) {
	ctx, end := p.tracer.StartStageSpan(ctx, "parse")
	defer end()

	format, ok := job.Format()
	if !ok {
		return nil, exception.NewJobError(moduleName, exception.CodeUnsupportedFileType, fmt.Sprintf("unsupported file type: %s", job.FileName), nil)
	}
	storageName := job.StorageRef
	if storageName == "" {
		storageName = p.cfg.Storage
	}
	conn, err := p.storage.ResolveStorageConnection(ctx, storageName)
	if err != nil {
		return nil, exception.NewJobError(moduleName, exception.CodeSourceUnavailable, fmt.Sprintf("storage %q is unavailable", storageName), err)
	}
	rc, err := conn.Download(ctx, "", job.FilePath)
	if err != nil {
		msg := fmt.Sprintf("failed to open %s", job.FilePath)
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			msg = fmt.Sprintf("file %s does not exist", job.FilePath)
		}
		return nil, exception.NewJobError(moduleName, exception.CodeSourceUnavailable, msg, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			logger.Warnf("Failed to close %s: %v", job.FilePath, cerr)
		}
	}()

	start := p.now()
	records, err := parser.Parse(ctx, rc, format, parser.OptionsFromJob(job))
	p.recorder.RecordDuration(ctx, "parse", p.now().Sub(start), map[string]string{"format": string(format)})
	return records, err
}

func (p *Processor) failed(ctx context.Context, job *model.Job, err error) Report {
	if exception.IsCancellation(err) {
		return Report{Status: model.JobStatusInProgress, Note: err.Error()}
	}
	p.tracer.RecordError(ctx, moduleName, err)
	note := exception.ExtractErrorMessage(err)
	logger.WithFields(map[string]interface{}{"job_id": job.ID, "file": job.FileName}).Errorf("Import failed: %s", note)
	return Report{Status: model.JobStatusDataLoadFailed, Note: note}
}

// queued is a record whose log entry waits for its turn or for its deferred save.
type queued struct {
	rec      model.Record
	result   StageResult
	started  time.Time
	ended    time.Time
	resolved bool
}

// jobRun is the state of one Process call.
type jobRun struct {
	p        *Processor
	job      *model.Job
	mapper   *mapper.Mapper
	saver    *save.Manager
	logs     *uploadlog.Buffer
	builder  uploadlog.EntryBuilder
	opts     analysis.Options
	progress model.Progress

	queue []*queued
	byPos map[int]*queued
}

func (r *jobRun) execute(ctx context.Context, records []model.Record) (report Report) {
	p := r.p
	defer func() {
		report = r.finish(ctx, report)
	}()

	recCtx, end := p.tracer.StartStageSpan(ctx, "records")
	defer end()
	for _, rec := range records {
		if err := recCtx.Err(); err != nil {
			return Report{Status: model.JobStatusInProgress, Note: err.Error()}
		}
		q := &queued{rec: rec, started: p.now()}
		r.queue = append(r.queue, q)
		r.byPos[rec.Position] = q

		res, deferred, flushed, err := r.processRecord(recCtx, rec)
		if err != nil && exception.IsCancellation(err) {
			return Report{Status: model.JobStatusInProgress, Note: err.Error()}
		}
		q.result = res
		q.ended = p.now()
		q.resolved = !deferred
		// flushed may include rec itself when its save filled the buffer
		r.settle(flushed)
		if err := r.drain(recCtx); err != nil {
			return Report{Status: model.JobStatusInProgress, Note: err.Error()}
		}
	}

	settled, err := r.saver.Flush(recCtx)
	r.settle(settled)
	if err != nil {
		return Report{Status: model.JobStatusInProgress, Note: err.Error()}
	}
	if err := r.drain(recCtx); err != nil {
		return Report{Status: model.JobStatusInProgress, Note: err.Error()}
	}
	return Report{}
}

// processRecord runs map, analyze and save. deferred is set when the save sits
// in the bulk buffer; flushed carries buffered saves completed meanwhile, which
// may include rec itself.
func (r *jobRun) processRecord(ctx context.Context, rec model.Record) (res StageResult, deferred bool, flushed []save.Settled, err error) {
	draft, err := r.mapper.Map(ctx, rec)
	if err != nil {
		return StageResult{Stage: StageMappingError, Err: err}, false, nil, err
	}
	if r.saver.Buffered(draft) {
		// an earlier record of the file saves the same unit; write it first so
		// this record is mapped against the stored state
		flushed, err = r.saver.Flush(ctx)
		if err != nil {
			return StageResult{Stage: StageSaveError, Err: err}, false, flushed, err
		}
		if draft, err = r.mapper.Map(ctx, rec); err != nil {
			return StageResult{Stage: StageMappingError, Err: err}, false, flushed, err
		}
	}
	res.Draft = draft

	analysisResult, err := r.p.engine.Analyze(ctx, draft, r.opts)
	res.Analysis = analysisResult
	if err != nil {
		res.Stage, res.Err = StageValidationError, err
		return res, false, flushed, err
	}
	if analysisResult.Severity == model.SeverityError {
		res.Stage = StageValidationError
		return res, false, flushed, nil
	}

	out, err := r.saver.Save(ctx, draft)
	flushed = append(flushed, out.Flushed...)
	switch {
	case err != nil:
		res.Stage, res.Err = StageSaveError, err
	case out.Gated:
		res.Gated = true
	case out.Deferred:
		deferred = true
	default:
		res.RegID = out.RegID
	}
	return res, deferred, flushed, err
}

func (r *jobRun) settle(settled []save.Settled) {
	for _, s := range settled {
		q, ok := r.byPos[s.Position]
		if !ok {
			continue
		}
		q.resolved = true
		q.ended = r.p.now()
		q.result.RegID = s.RegID
		if s.Err != nil {
			q.result.Stage, q.result.Err = StageSaveError, s.Err
		}
	}
}

// drain emits log entries from the head of the queue while they are resolved,
// which keeps the log in file order.
func (r *jobRun) drain(ctx context.Context) error {
	for len(r.queue) > 0 && r.queue[0].resolved {
		q := r.queue[0]
		r.queue = r.queue[1:]
		delete(r.byPos, q.rec.Position)

		res := q.result
		status := res.Status()
		var summary []string
		if res.Err == nil {
			summary = res.Analysis.Summary
		}
		entry := r.builder.Build(q.rec, res.Draft, status, res.Note(), res.FieldErrors(), summary, res.RegID, q.started, q.ended)
		if err := r.logs.Append(ctx, entry); err != nil && exception.IsCancellation(err) {
			return err
		}

		r.progress.Add(status)
		r.p.recorder.RecordRecordOutcome(ctx, r.job.UnitType, status, res.Code())
		if status == model.LogStatusError {
			logger.WithFields(map[string]interface{}{"job_id": r.job.ID, "position": q.rec.Position, "stage": res.Stage.String()}).
				Debugf("Record rejected: %s", res.Note())
		}
		if r.progress.Processed%progressEvery == 0 {
			r.reportProgress(ctx)
		}
	}
	return nil
}

func (r *jobRun) reportProgress(ctx context.Context) {
	if err := r.p.tracker.Report(ctx, r.job.ID, r.progress); err != nil {
		logger.Debugf("Progress report for job %s failed: %v", r.job.ID, err)
	}
}

// finish flushes the log buffer and decides the terminal status.
func (r *jobRun) finish(ctx context.Context, report Report) Report {
	flushCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
	}
	flushCtx, end := r.p.tracer.StartStageSpan(flushCtx, "flush")
	flushErr := r.logs.Flush(flushCtx)
	end()
	r.reportProgress(flushCtx)

	report.Progress = r.progress
	if report.Status == model.JobStatusInProgress {
		logger.Warnf("Job %s interrupted after %d of %d records: %s", r.job.ID, r.progress.Processed, r.progress.Total, report.Note)
		return report
	}
	switch {
	case flushErr != nil:
		report.Status = model.JobStatusDataLoadCompletedPartially
		report.Note = exception.ExtractErrorMessage(flushErr)
	case !r.progress.Clean():
		report.Status = model.JobStatusDataLoadCompletedPartially
		report.Note = fmt.Sprintf("%d of %d records loaded, %d with warnings, %d failed",
			r.progress.Done+r.progress.Warnings, r.progress.Total, r.progress.Warnings, r.progress.Errors)
	default:
		report.Status = model.JobStatusDataLoadCompleted
	}
	return report
}
