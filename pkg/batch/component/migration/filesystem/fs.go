// Package filesystem embeds the SQL migrations of the import schema, one
// directory per database type.
package filesystem

import (
	"embed"
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

//go:embed resource
var rawMigrationFS embed.FS

// MigrationsFSTag is the Fx tag of the embedded migrations filesystem.
const MigrationsFSTag = `name:"migrationsFS"`

// ProvideMigrationsFS returns the embedded migrations rooted at the dialect directories.
func ProvideMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for migration FS: %v", err)
	}
	return subFS
}

// Module provides the embedded migrations filesystem.
var Module = fx.Provide(fx.Annotate(
	ProvideMigrationsFS,
	fx.ResultTags(MigrationsFSTag),
))
