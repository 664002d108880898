// Package mysql registers the MySQL dialect and provides its DBProvider.
package mysql

import (
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/statreg/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(DSN(cfg)), nil
	})
}

// DSN builds a go-sql-driver DSN. parseTime is always on so DATETIME columns
// scan into time.Time, and multiStatements lets migration files run as one script.
func DSN(c dbconfig.DatabaseConfig) string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("charset", "utf8mb4")
	params.Set("loc", "UTC")
	params.Set("multiStatements", "true")
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set(k, c.Params[k])
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.User, c.Password, c.Host, c.Port, c.Database, params.Encode())
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "mysql")
}

// Module adds the MySQL provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
