package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/statreg/pkg/batch/core/metrics"
	logger "github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// MetricEvent is one metric call waiting to be recorded.
type MetricEvent struct {
	Type     string
	Job      *model.Job
	UnitType model.UnitType
	Status   string
	Code     string
	Name     string
	Count    int64
	Err      error
	Duration time.Duration
	Tags     map[string]string
}

// Metric event type constants
const (
	MetricEventTypeJobStart       = "job_start"
	MetricEventTypeJobEnd         = "job_end"
	MetricEventTypeRecordOutcome  = "record_outcome"
	MetricEventTypeLogFlush       = "log_flush"
	MetricEventTypeSweep          = "sweep"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder hands metric calls to a single goroutine so that the
// per-record path never waits on the backend. Events are dropped when the queue
// is full.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker goroutine. A bufferSize of 0 or less
// uses 100.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeJobStart:
		r.syncRecorder.RecordJobStart(ctx, event.Job)
	case MetricEventTypeJobEnd:
		r.syncRecorder.RecordJobEnd(ctx, event.Job, model.JobStatus(event.Status), event.Duration)
	case MetricEventTypeRecordOutcome:
		r.syncRecorder.RecordRecordOutcome(ctx, event.UnitType, model.LogStatus(event.Status), event.Code)
	case MetricEventTypeLogFlush:
		r.syncRecorder.RecordLogFlush(ctx, int(event.Count), event.Err)
	case MetricEventTypeSweep:
		r.syncRecorder.RecordSweep(ctx, event.Count)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has recorded the queued events. It is safe to
// call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full, %s event discarded.", event.Type)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeJobStart, Job: job})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, job *model.Job, status model.JobStatus, duration time.Duration) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeJobEnd, Job: job, Status: string(status), Duration: duration})
}

func (r *AsyncMetricRecorder) RecordRecordOutcome(ctx context.Context, unitType model.UnitType, status model.LogStatus, code string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordOutcome, UnitType: unitType, Status: string(status), Code: code})
}

func (r *AsyncMetricRecorder) RecordLogFlush(ctx context.Context, count int, err error) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeLogFlush, Count: int64(count), Err: err})
}

func (r *AsyncMetricRecorder) RecordSweep(ctx context.Context, reset int64) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeSweep, Count: reset})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordDuration, Name: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
