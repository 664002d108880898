package test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
)

// MockUnitRepository is a testify mock of repository.UnitRepository.
type MockUnitRepository struct {
	mock.Mock
}

var _ repository.UnitRepository = (*MockUnitRepository)(nil)

func (m *MockUnitRepository) FindByExternalID(ctx context.Context, unitType model.UnitType, externalID string) (*model.StatUnit, error) {
	args := m.Called(ctx, unitType, externalID)
	if u, ok := args.Get(0).(*model.StatUnit); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUnitRepository) FindDuplicates(ctx context.Context, unitType model.UnitType, externalID, name, taxRegID string) ([]model.StatUnit, error) {
	args := m.Called(ctx, unitType, externalID, name, taxRegID)
	if units, ok := args.Get(0).([]model.StatUnit); ok {
		return units, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUnitRepository) Insert(ctx context.Context, unit *model.StatUnit) error {
	return m.Called(ctx, unit).Error(0)
}

func (m *MockUnitRepository) UpdateWithHistory(ctx context.Context, unit *model.StatUnit, history *model.StatUnitHistory, expectedVersion int) error {
	return m.Called(ctx, unit, history, expectedVersion).Error(0)
}

func (m *MockUnitRepository) BulkUpsert(ctx context.Context, units []*model.StatUnit, histories []*model.StatUnitHistory) error {
	return m.Called(ctx, units, histories).Error(0)
}

// MockUploadLogRepository is a testify mock of repository.UploadLogRepository.
type MockUploadLogRepository struct {
	mock.Mock
}

var _ repository.UploadLogRepository = (*MockUploadLogRepository)(nil)

func (m *MockUploadLogRepository) AppendBatch(ctx context.Context, entries []*model.UploadLogEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *MockUploadLogRepository) ListByJob(ctx context.Context, jobID string) ([]model.UploadLogEntry, error) {
	args := m.Called(ctx, jobID)
	if entries, ok := args.Get(0).([]model.UploadLogEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUploadLogRepository) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier records job completions.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyJobCompletion(ctx context.Context, summary model.JobSummary) error {
	return m.Called(ctx, summary).Error(0)
}

// FixedClock returns a clock function that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// MockMetricRecorder is a testify mock of metrics.MetricRecorder.
type MockMetricRecorder struct {
	mock.Mock
}

var _ metrics.MetricRecorder = (*MockMetricRecorder)(nil)

func (m *MockMetricRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	m.Called(ctx, job)
}

func (m *MockMetricRecorder) RecordJobEnd(ctx context.Context, job *model.Job, status model.JobStatus, duration time.Duration) {
	m.Called(ctx, job, status, duration)
}

func (m *MockMetricRecorder) RecordRecordOutcome(ctx context.Context, unitType model.UnitType, status model.LogStatus, code string) {
	m.Called(ctx, unitType, status, code)
}

func (m *MockMetricRecorder) RecordLogFlush(ctx context.Context, count int, err error) {
	m.Called(ctx, count, err)
}

func (m *MockMetricRecorder) RecordSweep(ctx context.Context, reset int64) {
	m.Called(ctx, reset)
}

func (m *MockMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	m.Called(ctx, name, duration, tags)
}
