package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

// maxDuplicates bounds the candidates returned by FindDuplicates.
const maxDuplicates = 10

// upsertColumns are overwritten when a bulk upsert hits an existing unit.
var upsertColumns = []string{
	"name", "short_name", "tax_reg_id", "email", "telephone", "address", "activity_code",
	"registration_date", "liquidation_date", "employees", "turnover",
	"data_source", "user_id", "edit_comment", "version", "updated_at",
}

// GORMUnitRepository implements repository.UnitRepository.
type GORMUnitRepository struct {
	db *gorm.DB
}

var _ repository.UnitRepository = (*GORMUnitRepository)(nil)

// NewGORMUnitRepository creates a unit repository on db.
func NewGORMUnitRepository(db *gorm.DB) *GORMUnitRepository {
	return &GORMUnitRepository{db: db}
}

// FindByExternalID implements repository.UnitRepository.
func (r *GORMUnitRepository) FindByExternalID(ctx context.Context, unitType model.UnitType, externalID string) (*model.StatUnit, error) {
	var unit model.StatUnit
	err := r.db.WithContext(ctx).
		Where("unit_type = ? AND external_id = ?", unitType, externalID).
		Take(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError("GORMUnitRepository.FindByExternalID", "", fmt.Sprintf("failed to load %s %s", unitType, externalID), err, false, true)
	}
	return &unit, nil
}

// FindDuplicates implements repository.UnitRepository.
func (r *GORMUnitRepository) FindDuplicates(ctx context.Context, unitType model.UnitType, externalID, name, taxRegID string) ([]model.StatUnit, error) {
	if name == "" && taxRegID == "" {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Where("unit_type = ? AND external_id <> ?", unitType, externalID)
	switch {
	case name != "" && taxRegID != "":
		q = q.Where(r.db.Where("name = ?", name).Or("tax_reg_id = ?", taxRegID))
	case name != "":
		q = q.Where("name = ?", name)
	default:
		q = q.Where("tax_reg_id = ?", taxRegID)
	}
	var units []model.StatUnit
	if err := q.Order("reg_id").Limit(maxDuplicates).Find(&units).Error; err != nil {
		return nil, exception.NewBatchError("GORMUnitRepository.FindDuplicates", "", "failed to search duplicates", err, false, true)
	}
	return units, nil
}

// Insert implements repository.UnitRepository.
func (r *GORMUnitRepository) Insert(ctx context.Context, unit *model.StatUnit) error {
	if unit.Version == 0 {
		unit.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(unit).Error; err != nil {
		if gormadapter.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %s %s", repository.ErrDuplicateUnit, unit.UnitType, unit.ExternalID)
		}
		return err
	}
	return nil
}

// UpdateWithHistory implements repository.UnitRepository. The history row and
// the guarded update share one transaction; a lost version check rolls both back.
func (r *GORMUnitRepository) UpdateWithHistory(ctx context.Context, unit *model.StatUnit, history *model.StatUnitHistory, expectedVersion int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if history != nil {
			if err := tx.Create(history).Error; err != nil {
				return err
			}
		}
		unit.Version = expectedVersion + 1
		unit.UpdatedAt = time.Now().UTC()
		res := tx.Model(unit).
			Where("version = ?", expectedVersion).
			Select("*").
			Omit("reg_id", "created_at").
			Updates(unit)
		if res.Error != nil {
			unit.Version = expectedVersion
			if gormadapter.IsDuplicateKey(res.Error) {
				return fmt.Errorf("%w: %s %s", repository.ErrDuplicateUnit, unit.UnitType, unit.ExternalID)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			unit.Version = expectedVersion
			return fmt.Errorf("%w: reg_id %d expected version %d", repository.ErrStaleUnit, unit.RegID, expectedVersion)
		}
		return nil
	})
}

// BulkUpsert implements repository.UnitRepository. Histories are written first,
// then all units in one INSERT .. ON CONFLICT (unit_type, external_id) statement.
// RegIDs are re-read afterwards because drivers disagree on what an upsert returns.
func (r *GORMUnitRepository) BulkUpsert(ctx context.Context, units []*model.StatUnit, histories []*model.StatUnitHistory) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(histories) > 0 {
			if err := tx.Create(&histories).Error; err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		for _, u := range units {
			if u.Version == 0 {
				u.Version = 1
			}
			u.UpdatedAt = now
			if u.CreatedAt.IsZero() {
				u.CreatedAt = now
			}
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_type"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Omit("reg_id").Create(&units).Error
		if err != nil {
			return err
		}
		return r.refreshRegIDs(tx, units)
	})
}

func (r *GORMUnitRepository) refreshRegIDs(tx *gorm.DB, units []*model.StatUnit) error {
	byType := map[model.UnitType][]string{}
	for _, u := range units {
		byType[u.UnitType] = append(byType[u.UnitType], u.ExternalID)
	}
	ids := map[model.UnitType]map[string]uint64{}
	for unitType, externalIDs := range byType {
		var rows []model.StatUnit
		err := tx.Select("reg_id", "unit_type", "external_id").
			Where("unit_type = ? AND external_id IN ?", unitType, externalIDs).
			Find(&rows).Error
		if err != nil {
			return err
		}
		ids[unitType] = make(map[string]uint64, len(rows))
		for _, row := range rows {
			ids[unitType][row.ExternalID] = row.RegID
		}
	}
	for _, u := range units {
		u.RegID = ids[u.UnitType][u.ExternalID]
	}
	return nil
}
