package sql

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
)

// Module provides the GORM repositories. They all share the import datasource *gorm.DB.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewGORMJobRepository, fx.As(new(repository.JobRepository)))),
	fx.Provide(fx.Annotate(NewGORMUnitRepository, fx.As(new(repository.UnitRepository)))),
	fx.Provide(fx.Annotate(NewGORMUploadLogRepository, fx.As(new(repository.UploadLogRepository)))),
)
