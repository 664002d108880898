package gorm

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/statreg/pkg/batch/adapter/database"
	config "github.com/tigerroll/statreg/pkg/batch/core/config"
)

// NewImportDB resolves the datasource named by statreg.import.datasource. All
// repositories of the import pipeline share this handle.
func NewImportDB(lc fx.Lifecycle, cfg *config.Config, resolver *GormDBConnectionResolver) (*gorm.DB, error) {
	conn, err := resolver.ResolveDBConnection(context.Background(), cfg.Statreg.Import.Datasource)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resolver.CloseAll()
		},
	})
	return conn.DB(), nil
}

// Module provides the connection resolver and the import datasource handle.
// Dialects are added by the mysql, postgres and sqlite modules.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Provide(NewImportDB),
)
