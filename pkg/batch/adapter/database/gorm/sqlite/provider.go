// Package sqlite registers the SQLite dialect and provides its DBProvider.
package sqlite

import (
	"errors"
	"net/url"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/statreg/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(DSN(cfg)), nil
	})
}

// DSN returns the database path with driver options appended as a query string.
func DSN(c dbconfig.DatabaseConfig) string {
	if len(c.Params) == 0 {
		return c.Database
	}
	params := url.Values{}
	for k, v := range c.Params {
		params.Set(k, v)
	}
	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}
	return c.Database + sep + params.Encode()
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "sqlite")
}

// Module adds the SQLite provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
