// Package app assembles the Fx options of the statreg commands.
package app

import (
	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	"github.com/tigerroll/statreg/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/statreg/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/statreg/pkg/batch/adapter/storage/s3"
	"github.com/tigerroll/statreg/pkg/batch/component/export"
	"github.com/tigerroll/statreg/pkg/batch/component/migration"
	config "github.com/tigerroll/statreg/pkg/batch/core/config"
	coreMetrics "github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/engine/analysis"
	"github.com/tigerroll/statreg/pkg/batch/engine/importer"
	"github.com/tigerroll/statreg/pkg/batch/engine/queue"
	"github.com/tigerroll/statreg/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/statreg/pkg/batch/infrastructure/progress"
	sqlRepo "github.com/tigerroll/statreg/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/statreg/pkg/batch/listener/notification"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// ConfigOptions loads the configuration from the embedded YAML and opts.
func ConfigOptions(embedded config.EmbeddedConfig, opts config.LoadOptions) []fx.Option {
	return []fx.Option{
		logger.Module,
		fx.Supply(embedded, opts),
		config.Module,
	}
}

// StoreOptions adds the database, the storage backends and the repositories.
func StoreOptions() []fx.Option {
	return []fx.Option{
		gormadapter.Module,
		mysql.Module,
		postgres.Module,
		sqlite.Module,
		storageAdapter.Module,
		local.Module,
		gcs.Module,
		s3.Module,
		sqlRepo.Module,
	}
}

// ServeOptions builds the long-running import service: workers, sweeper,
// metrics, progress tracking and notifications.
func ServeOptions(embedded config.EmbeddedConfig, opts config.LoadOptions) []fx.Option {
	var options []fx.Option
	options = append(options, ConfigOptions(embedded, opts)...)
	options = append(options, StoreOptions()...)
	options = append(options, metrics.Module)
	options = append(options, progress.Module)
	options = append(options, notification.Module)
	options = append(options, analysis.Module)
	options = append(options, importer.Module)
	options = append(options, queue.Module)
	options = append(options, fx.Invoke(queue.RegisterLifecycle))
	return options
}

// CommandOptions builds a one-shot application. Metrics are not reported.
// extra typically holds an fx.Populate for the values the command needs.
func CommandOptions(embedded config.EmbeddedConfig, opts config.LoadOptions, extra ...fx.Option) []fx.Option {
	var options []fx.Option
	options = append(options, ConfigOptions(embedded, opts)...)
	options = append(options, StoreOptions()...)
	options = append(options, coreMetrics.NoOpModule)
	options = append(options, progress.Module)
	options = append(options, export.Module)
	options = append(options, fx.Provide(queue.NewSweeper))
	options = append(options, extra...)
	return options
}

// MigrationOptions builds an application that only opens the migrator.
func MigrationOptions(embedded config.EmbeddedConfig, opts config.LoadOptions, extra ...fx.Option) []fx.Option {
	var options []fx.Option
	options = append(options, ConfigOptions(embedded, opts)...)
	options = append(options, migration.Module)
	options = append(options, extra...)
	return options
}
