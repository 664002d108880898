package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

func newUnit(externalID, name string) *model.StatUnit {
	return &model.StatUnit{
		UnitType:   model.UnitTypeLegalUnit,
		ExternalID: externalID,
		UnitFields: model.UnitFields{Name: name},
		DataSource: "units.csv",
	}
}

func TestUnitRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMUnitRepository(test.NewSQLiteDB(t))

	u := newUnit("1", "Acme")
	u.Turnover = decimal.NewNullDecimal(decimal.RequireFromString("10.50"))
	require.NoError(t, repo.Insert(ctx, u))
	assert.NotZero(t, u.RegID)
	assert.Equal(t, 1, u.Version)

	found, err := repo.FindByExternalID(ctx, model.UnitTypeLegalUnit, "1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.RegID, found.RegID)
	assert.Equal(t, "Acme", found.Name)
	assert.True(t, found.Turnover.Valid)

	missing, err := repo.FindByExternalID(ctx, model.UnitTypeLocalUnit, "1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUnitRepository_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMUnitRepository(test.NewSQLiteDB(t))

	require.NoError(t, repo.Insert(ctx, newUnit("1", "Acme")))
	err := repo.Insert(ctx, newUnit("1", "Acme again"))
	assert.True(t, errors.Is(err, repository.ErrDuplicateUnit), "got %v", err)

	other := newUnit("1", "Local Acme")
	other.UnitType = model.UnitTypeLocalUnit
	assert.NoError(t, repo.Insert(ctx, other))
}

func TestUnitRepository_FindDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := sqlRepo.NewGORMUnitRepository(test.NewSQLiteDB(t))

	a := newUnit("1", "Acme")
	a.TaxRegID = "T-1"
	b := newUnit("2", "Beta")
	b.TaxRegID = "T-2"
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	dups, err := repo.FindDuplicates(ctx, model.UnitTypeLegalUnit, "3", "Acme", "T-2")
	require.NoError(t, err)
	assert.Len(t, dups, 2)

	dups, err = repo.FindDuplicates(ctx, model.UnitTypeLegalUnit, "1", "Acme", "")
	require.NoError(t, err)
	assert.Empty(t, dups, "a unit is never its own duplicate")

	dups, err = repo.FindDuplicates(ctx, model.UnitTypeLegalUnit, "9", "", "")
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestUnitRepository_UpdateWithHistory(t *testing.T) {
	ctx := context.Background()
	db := test.NewSQLiteDB(t)
	repo := sqlRepo.NewGORMUnitRepository(db)

	u := newUnit("1", "Acme")
	require.NoError(t, repo.Insert(ctx, u))

	history := u.Snapshot("job-1", time.Now())
	u.Name = "Acme Ltd"
	require.NoError(t, repo.UpdateWithHistory(ctx, u, history, 1))
	assert.Equal(t, 2, u.Version)

	found, err := repo.FindByExternalID(ctx, model.UnitTypeLegalUnit, "1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", found.Name)
	assert.Equal(t, 2, found.Version)

	var rows []model.StatUnitHistory
	require.NoError(t, db.Where("reg_id = ?", u.RegID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].Name)
	assert.Equal(t, 1, rows[0].Version)
	assert.Equal(t, "job-1", rows[0].JobID)
}

func TestUnitRepository_UpdateWithHistoryStale(t *testing.T) {
	ctx := context.Background()
	db := test.NewSQLiteDB(t)
	repo := sqlRepo.NewGORMUnitRepository(db)

	u := newUnit("1", "Acme")
	require.NoError(t, repo.Insert(ctx, u))

	u.Name = "Lost update"
	err := repo.UpdateWithHistory(ctx, u, u.Snapshot("job-1", time.Now()), 7)
	assert.True(t, errors.Is(err, repository.ErrStaleUnit), "got %v", err)
	assert.Equal(t, 7, u.Version)

	var count int64
	require.NoError(t, db.Model(&model.StatUnitHistory{}).Count(&count).Error)
	assert.Zero(t, count, "history is rolled back with the update")
}

func TestUnitRepository_BulkUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := test.NewSQLiteDB(t)
	repo := sqlRepo.NewGORMUnitRepository(db)

	batch := func() []*model.StatUnit {
		return []*model.StatUnit{newUnit("1", "Acme"), newUnit("2", "Beta"), newUnit("3", "Gamma")}
	}
	first := batch()
	require.NoError(t, repo.BulkUpsert(ctx, first, nil))
	for _, u := range first {
		assert.NotZero(t, u.RegID, u.ExternalID)
	}

	second := batch()
	second[1].Name = "Beta Ltd"
	second[1].Version = 2
	require.NoError(t, repo.BulkUpsert(ctx, second, []*model.StatUnitHistory{first[1].Snapshot("job-2", time.Now())}))

	var count int64
	require.NoError(t, db.Model(&model.StatUnit{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	for i := range first {
		assert.Equal(t, first[i].RegID, second[i].RegID)
	}

	found, err := repo.FindByExternalID(ctx, model.UnitTypeLegalUnit, "2")
	require.NoError(t, err)
	assert.Equal(t, "Beta Ltd", found.Name)
	assert.Equal(t, 2, found.Version)

	require.NoError(t, db.Model(&model.StatUnitHistory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.NoError(t, repo.BulkUpsert(ctx, nil, nil))
}
