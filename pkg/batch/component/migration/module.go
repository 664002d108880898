package migration

import (
	"io/fs"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/component/migration/filesystem"
	config "github.com/tigerroll/statreg/pkg/batch/core/config"
)

// MigratorParams defines the dependencies of NewImportMigrator.
type MigratorParams struct {
	fx.In
	Cfg         *config.Config
	MigrationFS fs.FS `name:"migrationsFS"`
}

// NewImportMigrator returns a Migrator for the import datasource.
func NewImportMigrator(p MigratorParams) (Migrator, error) {
	name := p.Cfg.Statreg.Import.Datasource
	dbCfg, err := gormadapter.LookupDatabaseConfig(p.Cfg, name)
	if err != nil {
		return nil, err
	}
	return NewMigrator(name, dbCfg, p.MigrationFS), nil
}

// Module provides the embedded migrations and the import datasource Migrator.
var Module = fx.Options(
	filesystem.Module,
	fx.Provide(NewImportMigrator),
)
