package importer_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/engine/analysis"
	"github.com/tigerroll/statreg/pkg/batch/engine/importer"
	"github.com/tigerroll/statreg/pkg/batch/infrastructure/progress"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

type fixture struct {
	db        *gorm.DB
	dir       string
	tracker   *progress.MemoryTracker
	processor *importer.Processor
}

func newFixture(t *testing.T, bulkSize int, extra ...analysis.Rule) *fixture {
	t.Helper()
	storage, dir := test.NewLocalStorage(t)
	f := &fixture{db: test.NewSQLiteDB(t), dir: dir, tracker: progress.NewMemoryTracker()}

	cfg := config.NewConfig().Statreg.Import
	cfg.BulkSize = bulkSize
	cfg.LogBufferSize = 2
	cfg.Storage = test.UploadsStorage

	rule, err := analysis.NewMandatoryFieldsRule([]string{"name"})
	require.NoError(t, err)
	f.processor = importer.NewProcessor(importer.ProcessorParams{
		Storage:  storage,
		Units:    sqlRepo.NewGORMUnitRepository(f.db),
		Logs:     sqlRepo.NewGORMUploadLogRepository(f.db),
		Engine:   analysis.NewEngine(append([]analysis.Rule{rule}, extra...)...),
		Tracker:  f.tracker,
		Recorder: metrics.NewNoOpMetricRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
		Cfg:      &cfg,
	})
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o600))
}

func (f *fixture) entries(t *testing.T, jobID string) []model.UploadLogEntry {
	t.Helper()
	entries, err := sqlRepo.NewGORMUploadLogRepository(f.db).ListByJob(context.Background(), jobID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) unitCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.StatUnit{}).Count(&n).Error)
	return n
}

func statuses(entries []model.UploadLogEntry) []model.LogStatus {
	out := make([]model.LogStatus, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}

const preamble = "exported 2026-10-01\n"

// lookupRule fails on the unit with the given external id.
type lookupRule struct {
	failOn string
}

func (r lookupRule) Name() string { return "registry-lookup" }

func (r lookupRule) Check(_ context.Context, draft *model.Draft, _ analysis.Options) (analysis.Findings, error) {
	if draft.ExternalID == r.failOn {
		return analysis.Findings{}, errors.New("registry lookup timed out")
	}
	return analysis.Findings{}, nil
}

func TestProcess_MixedOutcomes(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n2,\n3,Beta\n")
	job := test.NewTestJob()

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, report.Status)
	assert.Equal(t, "2 of 3 records loaded, 0 with warnings, 1 failed", report.Note)
	assert.Equal(t, model.Progress{Total: 3, Processed: 3, Done: 2, Errors: 1}, report.Progress)

	entries := f.entries(t, job.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, []model.LogStatus{model.LogStatusDone, model.LogStatusError, model.LogStatusDone}, statuses(entries))
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Position, entries[1].Position, entries[2].Position})
	assert.Equal(t, "NameIsRequired", entries[1].Note)
	assert.Contains(t, entries[1].Errors, "NameIsRequired")
	assert.Nil(t, entries[1].RegID)
	require.NotNil(t, entries[0].RegID)
	assert.Equal(t, "Acme", entries[0].UnitName)
	assert.JSONEq(t, `{"id":"1","name":"Acme"}`, entries[0].SerializedRaw)
	assert.EqualValues(t, 2, f.unitCount(t))

	tracked, ok, err := f.tracker.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, report.Progress, tracked)
}

func TestProcess_AllClean(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n2,Beta\n3,Gamma\n4,Delta\n5,Epsilon\n")
	job := test.NewTestJob()

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompleted, report.Status)
	assert.Empty(t, report.Note)
	assert.Len(t, f.entries(t, job.ID), 5)
	assert.EqualValues(t, 5, f.unitCount(t))
}

func TestProcess_JobLevelFailures(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		code    string
	}{
		{name: "corrupt xml", file: "units.xml", content: "<units><unit><id>1</id>", code: "FileIsCorrupt"},
		{name: "header only", file: "units.csv", content: preamble + "id,name\n", code: "UploadFileEmpty"},
		{name: "empty unit", file: "units.csv", content: preamble + "id,name\n1,Acme\n , \n", code: "FileHasEmptyUnit"},
		{name: "unsupported type", file: "units.json", content: "[]", code: "UnsupportedFileType"},
		{name: "missing file", file: "", code: "SourceUnavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 1)
			name := tc.file
			if name == "" {
				name = "absent.csv"
			} else {
				f.write(t, name, tc.content)
			}
			job := test.NewTestJob(test.WithFile(name))

			report := f.processor.Process(context.Background(), job)

			assert.Equal(t, model.JobStatusDataLoadFailed, report.Status)
			assert.Contains(t, report.Note, tc.code)
			assert.Empty(t, f.entries(t, job.ID))
			assert.Zero(t, f.unitCount(t))
		})
	}
}

func TestProcess_InvalidMapping(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n")
	job := test.NewTestJob(test.WithMapping(model.Mapping{{Source: "name", Target: "name"}}))

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadFailed, report.Status)
	assert.Contains(t, report.Note, "InvalidMapping")
}

func TestProcess_ReprocessingDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n2,Beta\n")

	first := test.NewTestJob()
	require.Equal(t, model.JobStatusDataLoadCompleted, f.processor.Process(context.Background(), first).Status)

	f.write(t, "units.csv", preamble+"id,name\n1,Acme Ltd\n2,Beta\n")
	second := test.NewTestJob()
	require.Equal(t, model.JobStatusDataLoadCompleted, f.processor.Process(context.Background(), second).Status)

	assert.EqualValues(t, 2, f.unitCount(t))
	var unit model.StatUnit
	require.NoError(t, f.db.Where("external_id = ?", "1").First(&unit).Error)
	assert.Equal(t, "Acme Ltd", unit.Name)
	assert.Equal(t, 2, unit.Version)

	var history int64
	require.NoError(t, f.db.Model(&model.StatUnitHistory{}).Count(&history).Error)
	assert.EqualValues(t, 2, history)
}

func TestProcess_BulkKeepsFileOrder(t *testing.T) {
	f := newFixture(t, 3)
	f.write(t, "units.csv", preamble+"id,name\n1,A\n2,B\n3,\n4,D\n5,E\n")
	job := test.NewTestJob()

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, report.Status)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 5)
	assert.Equal(t, []model.LogStatus{
		model.LogStatusDone, model.LogStatusDone, model.LogStatusError, model.LogStatusDone, model.LogStatusDone,
	}, statuses(entries))
	for _, e := range entries {
		if e.Status == model.LogStatusDone {
			assert.NotNil(t, e.RegID, "position %d", e.Position)
		}
	}
	assert.EqualValues(t, 4, f.unitCount(t))
}

func TestProcess_PriorityGate(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n")
	job := test.NewTestJob(test.WithPriority(model.PriorityNotTrusted))

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, report.Status)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogStatusWarning, entries[0].Status)
	assert.Equal(t, "NotSavedByPriority", entries[0].Note)
	assert.Zero(t, f.unitCount(t))
}

func TestProcess_CreateOnlyRejectsExisting(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n")
	require.Equal(t, model.JobStatusDataLoadCompleted, f.processor.Process(context.Background(), test.NewTestJob()).Status)

	job := test.NewTestJob(test.WithOperations(model.OperationCreate))
	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, report.Status)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogStatusError, entries[0].Status)
	assert.Contains(t, entries[0].Note, "UnitAlreadyExists")
}

func TestProcess_CancelledBeforeRecords(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.processor.Process(ctx, test.NewTestJob())

	assert.True(t, report.Interrupted())
	assert.Equal(t, model.JobStatusInProgress, report.Status)
	assert.Zero(t, f.unitCount(t))
}

func TestProcess_BulkFlushBySaveKeepsLaterRecords(t *testing.T) {
	f := newFixture(t, 2)
	f.write(t, "units.csv", preamble+"id,name\n1,A\n2,B\n3,C\n4,D\n")
	job := test.NewTestJob()

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompleted, report.Status)
	assert.Equal(t, 4, report.Progress.Processed)
	assert.Equal(t, 4, report.Progress.Done)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, model.LogStatusDone, e.Status)
		assert.NotNil(t, e.RegID, "position %d", e.Position)
	}
	assert.EqualValues(t, 4, f.unitCount(t))
}

func TestProcess_RepeatedUnitMatchesPerRecordMode(t *testing.T) {
	for _, bulkSize := range []int{1, 10} {
		t.Run(fmt.Sprintf("bulk %d", bulkSize), func(t *testing.T) {
			f := newFixture(t, bulkSize)
			f.write(t, "units.csv", preamble+"id,name\n1,Acme\n1,Acme Ltd\n")
			job := test.NewTestJob()

			report := f.processor.Process(context.Background(), job)

			assert.Equal(t, model.JobStatusDataLoadCompleted, report.Status)
			assert.Equal(t, []model.LogStatus{model.LogStatusDone, model.LogStatusDone}, statuses(f.entries(t, job.ID)))
			var unit model.StatUnit
			require.NoError(t, f.db.Where("external_id = ?", "1").First(&unit).Error)
			assert.Equal(t, "Acme Ltd", unit.Name)
			assert.Equal(t, 2, unit.Version)
			var history int64
			require.NoError(t, f.db.Model(&model.StatUnitHistory{}).Count(&history).Error)
			assert.EqualValues(t, 1, history)
		})
	}
}

func TestProcess_RuleFaultKeepsCause(t *testing.T) {
	f := newFixture(t, 1, lookupRule{failOn: "2"})
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n2,Beta\n")
	job := test.NewTestJob()

	report := f.processor.Process(context.Background(), job)

	assert.Equal(t, model.JobStatusDataLoadCompletedPartially, report.Status)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LogStatusDone, entries[0].Status)
	assert.Equal(t, model.LogStatusError, entries[1].Status)
	assert.Contains(t, entries[1].Note, "AnalysisFault")
	assert.Contains(t, entries[1].Note, "registry lookup timed out")
	assert.EqualValues(t, 1, f.unitCount(t))
}

func TestProcess_RetriedJobReplacesItsLog(t *testing.T) {
	f := newFixture(t, 1)
	f.write(t, "units.csv", preamble+"id,name\n1,Acme\n2,\n")
	job := test.NewTestJob()

	first := f.processor.Process(context.Background(), job)
	second := f.processor.Process(context.Background(), job)

	assert.Equal(t, first.Status, second.Status)
	entries := f.entries(t, job.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, []model.LogStatus{model.LogStatusDone, model.LogStatusError}, statuses(entries))
}
