package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/engine/importer"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

type stubProcessor struct {
	mu     sync.Mutex
	report importer.Report
	seen   []string
}

func (p *stubProcessor) Process(_ context.Context, job *model.Job) importer.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, job.ID)
	return p.report
}

type harness struct {
	jobs      *sqlRepo.GORMJobRepository
	processor *stubProcessor
	notifier  *test.MockNotifier
	worker    *Worker
	sweeper   *Sweeper
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		jobs:      sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t)),
		processor: &stubProcessor{},
		notifier:  &test.MockNotifier{},
		clock:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	h.worker = NewWorker(WorkerParams{
		Jobs:      h.jobs,
		Processor: h.processor,
		Notifier:  h.notifier,
		Recorder:  metrics.NewNoOpMetricRecorder(),
		Cfg:       &config.WorkerConfig{PollInterval: 10 * time.Millisecond},
	})
	h.sweeper = NewSweeper(SweeperParams{
		Jobs:     h.jobs,
		Recorder: metrics.NewNoOpMetricRecorder(),
		Cfg:      &config.SweeperConfig{Interval: time.Minute, Timeout: 30 * time.Minute},
	})
	now := func() time.Time { return h.clock }
	h.worker.now, h.sweeper.now = now, now
	return h
}

func (h *harness) enqueue(t *testing.T, enqueuedAt time.Time) *model.Job {
	t.Helper()
	job := test.NewTestJob(test.WithEnqueuedAt(enqueuedAt))
	require.NoError(t, h.jobs.Enqueue(context.Background(), job))
	return job
}

func TestWorker_EmptyQueue(t *testing.T) {
	h := newHarness(t)
	claimed, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestWorker_FinishesAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	older := h.enqueue(t, h.clock.Add(-2*time.Minute))
	h.enqueue(t, h.clock.Add(-time.Minute))
	h.processor.report = importer.Report{
		Status:   model.JobStatusDataLoadCompletedPartially,
		Note:     "1 of 2 records loaded, 0 with warnings, 1 failed",
		Progress: model.Progress{Total: 2, Processed: 2, Done: 1, Errors: 1},
	}
	h.notifier.On("NotifyJobCompletion", mock.Anything, mock.MatchedBy(func(s model.JobSummary) bool {
		return s.JobID == older.ID && s.Status == model.JobStatusDataLoadCompletedPartially && s.Progress.Errors == 1
	})).Return(nil).Once()

	claimed, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []string{older.ID}, h.processor.seen)

	stored, err := h.jobs.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, stored.Status)
	assert.Equal(t, "1 of 2 records loaded, 0 with warnings, 1 failed", stored.Note)
	require.NotNil(t, stored.EndedAt)
	h.notifier.AssertExpectations(t)
}

func TestWorker_NotifierFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, h.clock)
	h.processor.report = importer.Report{Status: model.JobStatusDataLoadCompleted}
	h.notifier.On("NotifyJobCompletion", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	claimed, err := h.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	stored, err := h.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDataLoadCompleted, stored.Status)
}

func TestWorker_InterruptedJobIsRecoveredBySweeper(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t, h.clock.Add(-time.Minute))
	h.processor.report = importer.Report{Status: model.JobStatusInProgress, Note: context.Canceled.Error()}

	claimed, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusInProgress, stored.Status)
	h.notifier.AssertNotCalled(t, "NotifyJobCompletion", mock.Anything, mock.Anything)

	// Within the lease nothing moves.
	h.clock = h.clock.Add(10 * time.Minute)
	n, err := h.sweeper.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	claimed, err = h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)

	h.clock = h.clock.Add(time.Hour)
	n, err = h.sweeper.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	h.processor.report = importer.Report{Status: model.JobStatusDataLoadCompleted}
	h.notifier.On("NotifyJobCompletion", mock.Anything, mock.Anything).Return(nil).Once()
	claimed, err = h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []string{job.ID, job.ID}, h.processor.seen)

	stored, err = h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDataLoadCompleted, stored.Status)
}

func TestWorker_ReclaimedJobKeepsNewOwnerStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t, h.clock)
	h.processor.report = importer.Report{Status: model.JobStatusDataLoadCompleted}

	// Simulate the sweeper resetting the claim while the file is processed.
	h.worker.processor = processorFunc(func(ctx context.Context, j *model.Job) importer.Report {
		_, err := h.jobs.ResetExpired(ctx, h.clock.Add(time.Second))
		require.NoError(t, err)
		return importer.Report{Status: model.JobStatusDataLoadCompleted}
	})

	claimed, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	h.notifier.AssertNotCalled(t, "NotifyJobCompletion", mock.Anything, mock.Anything)
}

type processorFunc func(ctx context.Context, job *model.Job) importer.Report

func (f processorFunc) Process(ctx context.Context, job *model.Job) importer.Report { return f(ctx, job) }

func TestWorker_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	var mu sync.Mutex
	started := map[string]bool{}
	task := func(name string, fail bool) Task {
		return Task{Name: name, Run: func(ctx context.Context) error {
			mu.Lock()
			started[name] = true
			mu.Unlock()
			<-ctx.Done()
			if fail {
				return errors.New("boom")
			}
			return nil
		}}
	}
	s := NewScheduler(task("a", false), task("b", true))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return started["a"] && started["b"]
	}, time.Second, 5*time.Millisecond)

	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task b: boom")
	assert.NotContains(t, err.Error(), "task a")
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	assert.NoError(t, NewScheduler().Stop(context.Background()))
}

func TestSchedulerProviderHonoursEnabledFlags(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Statreg.Sweeper.Enabled = false
	s := NewSchedulerProvider(SchedulerParams{Worker: &Worker{}, Sweeper: &Sweeper{}, Cfg: cfg})
	require.Len(t, s.tasks, 1)
	assert.Equal(t, "worker", s.tasks[0].Name)
}
