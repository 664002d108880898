// Package uploadlog buffers per-record outcomes and writes them in batches.
package uploadlog

import (
	"context"
	"time"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
	"github.com/tigerroll/statreg/pkg/batch/support/util/serialization"
)

const moduleName = "uploadlog"

// Buffer collects entries of one job and appends them to the store once Size
// entries are waiting. Entries of a failed write stay buffered for the next flush.
type Buffer struct {
	repo     repository.UploadLogRepository
	size     int
	recorder metrics.MetricRecorder
	entries  []*model.UploadLogEntry
	written  int
}

// NewBuffer creates a buffer flushing every size entries.
func NewBuffer(repo repository.UploadLogRepository, size int, recorder metrics.MetricRecorder) *Buffer {
	if size < 1 {
		size = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Buffer{repo: repo, size: size, recorder: recorder}
}

// Append adds an entry and flushes when the buffer is full.
func (b *Buffer) Append(ctx context.Context, entry *model.UploadLogEntry) error {
	b.entries = append(b.entries, entry)
	if len(b.entries) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes every buffered entry.
func (b *Buffer) Flush(ctx context.Context) error {
	if len(b.entries) == 0 {
		return nil
	}
	err := b.repo.AppendBatch(ctx, b.entries)
	b.recorder.RecordLogFlush(ctx, len(b.entries), err)
	if err != nil {
		logger.Warnf("Failed to write %d upload log entries (job %s): %v", len(b.entries), b.entries[0].JobID, err)
		return exception.NewBatchError(moduleName, exception.CodeLogWriteFailed, "failed to write upload log", err, false, true)
	}
	b.written += len(b.entries)
	b.entries = nil
	return nil
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int { return len(b.entries) }

// Written returns the number of entries stored so far.
func (b *Buffer) Written() int { return b.written }

// EntryBuilder fills the common fields of a job's entries.
type EntryBuilder struct {
	JobID string
}

// Build creates the entry of one record. result may be nil when the record did
// not reach analysis.
func (eb EntryBuilder) Build(rec model.Record, draft *model.Draft, status model.LogStatus, note string,
	errs map[string][]string, summary []string, regID *uint64, started, ended time.Time) *model.UploadLogEntry {
	e := &model.UploadLogEntry{
		JobID:         eb.JobID,
		Position:      rec.Position,
		StartedAt:     started.UTC(),
		EndedAt:       ended.UTC(),
		SerializedRaw: serialization.MarshalString(moduleName, rec),
		RegID:         regID,
		Status:        status,
		Note:          note,
	}
	if draft != nil {
		e.ExternalID = draft.ExternalID
		e.UnitName = draft.String("name")
		if e.UnitName == "" && draft.Existing != nil {
			e.UnitName = draft.Existing.Name
		}
	}
	if len(errs) > 0 {
		e.Errors = serialization.MarshalString(moduleName, errs)
	}
	if len(summary) > 0 {
		e.Summary = serialization.MarshalString(moduleName, summary)
	}
	return e
}

