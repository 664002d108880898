package sql_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

func TestJobRepository_EnqueueGetAndList(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))

	job := test.NewTestJob()
	job.ID = ""
	job.Status = model.JobStatusDataLoadFailed
	require.NoError(t, repo.Enqueue(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)

	loaded, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Mapping, loaded.Mapping)
	assert.Equal(t, model.JobStatusPending, loaded.Status)
	assert.Nil(t, loaded.StartedAt)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrJobNotFound))

	jobs, err := repo.List(ctx, model.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	jobs, err = repo.List(ctx, model.JobStatusInProgress, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobRepository_ClaimNextIsFIFOAndExclusive(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	second := test.NewTestJob(test.WithEnqueuedAt(base.Add(time.Minute)))
	first := test.NewTestJob(test.WithEnqueuedAt(base))
	require.NoError(t, repo.Enqueue(ctx, second))
	require.NoError(t, repo.Enqueue(ctx, first))

	now := base.Add(time.Hour)
	claimed, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, model.JobStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
	assert.True(t, now.Equal(*claimed.StartedAt))

	claimed2, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	assert.Equal(t, second.ID, claimed2.ID)

	none, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJobRepository_ConcurrentClaimsNeverShareAJob(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))
	for i := 0; i < 6; i++ {
		require.NoError(t, repo.Enqueue(ctx, test.NewTestJob(test.WithEnqueuedAt(time.Now().Add(time.Duration(i)*time.Second)))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx, time.Now())
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 6)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestJobRepository_FinishOnlyFromInProgress(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))
	job := test.NewTestJob()
	require.NoError(t, repo.Enqueue(ctx, job))

	err := repo.Finish(ctx, job.ID, model.JobStatusDataLoadCompleted, "", time.Now())
	assert.True(t, errors.Is(err, repository.ErrJobNotInProgress))

	_, err = repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	assert.Error(t, repo.Finish(ctx, job.ID, model.JobStatusInProgress, "", time.Now()))
	require.NoError(t, repo.Finish(ctx, job.ID, model.JobStatusDataLoadFailed, "UploadFileEmpty", time.Now()))

	loaded, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDataLoadFailed, loaded.Status)
	assert.Equal(t, "UploadFileEmpty", loaded.Note)
	assert.NotNil(t, loaded.EndedAt)
}

func TestJobRepository_ResetExpired(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))
	job := test.NewTestJob()
	require.NoError(t, repo.Enqueue(ctx, job))

	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.ClaimNext(ctx, claimedAt)
	require.NoError(t, err)

	n, err := repo.ResetExpired(ctx, claimedAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.ResetExpired(ctx, claimedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, loaded.Status)
	assert.Nil(t, loaded.StartedAt)
}

func TestJobRepository_Requeue(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMJobRepository(test.NewSQLiteDB(t))
	job := test.NewTestJob()
	require.NoError(t, repo.Enqueue(ctx, job))

	assert.True(t, errors.Is(repo.Requeue(ctx, job.ID), repository.ErrJobNotTerminal))
	assert.True(t, errors.Is(repo.Requeue(ctx, "missing"), repository.ErrJobNotFound))

	_, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Finish(ctx, job.ID, model.JobStatusDataLoadCompletedPartially, "1 of 3 records failed", time.Now()))
	require.NoError(t, repo.Requeue(ctx, job.ID))

	loaded, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, loaded.Status)
	assert.Empty(t, loaded.Note)
	assert.Nil(t, loaded.EndedAt)
}

func TestJobRepository_ClaimLostRaceSQL(t *testing.T) {
	db, mock := test.NewMockGormDB(t)
	repo := sqlRepo.NewGORMJobRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "file_name", "status", "enqueued_at"}).
		AddRow("a", "a.csv", "Pending", now).
		AddRow("b", "b.csv", "Pending", now)
	mock.ExpectQuery("SELECT \\* FROM `import_jobs` WHERE status = \\? ORDER BY enqueued_at ASC, id ASC LIMIT \\?").
		WithArgs(model.JobStatusPending, 5).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `import_jobs` SET `started_at`=\\?,`status`=\\? WHERE id = \\? AND status = \\?").
		WithArgs(sqlmock.AnyArg(), model.JobStatusInProgress, "a", model.JobStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `import_jobs` SET `started_at`=\\?,`status`=\\? WHERE id = \\? AND status = \\?").
		WithArgs(sqlmock.AnyArg(), model.JobStatusInProgress, "b", model.JobStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := repo.ClaimNext(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "b", job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ResetExpiredSQL(t *testing.T) {
	db, mock := test.NewMockGormDB(t)
	repo := sqlRepo.NewGORMJobRepository(db)
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `import_jobs` SET `started_at`=\\?,`status`=\\? WHERE status = \\? AND started_at < \\?").
		WithArgs(nil, model.JobStatusPending, model.JobStatusInProgress, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.ResetExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
