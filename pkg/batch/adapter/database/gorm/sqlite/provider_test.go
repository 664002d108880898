package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/statreg/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "file.db", sqlite.DSN(dbconfig.DatabaseConfig{Database: "file.db"}))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=5000",
		sqlite.DSN(dbconfig.DatabaseConfig{Database: "file:x?mode=memory", Params: map[string]string{"_busy_timeout": "5000"}}))
}

func TestResolverOpensAndCachesConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Statreg.Datasources["register"] = map[string]interface{}{
		"type":     "sqlite",
		"database": ":memory:",
		"pool":     map[string]interface{}{"max_open_conns": "1"},
	}
	cfg.Statreg.Datasources["other"] = map[string]interface{}{"type": "oracle"}

	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})

	conn, err := resolver.ResolveDBConnection(context.Background(), "register")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, 1, conn.Config().Pool.MaxOpenConns)
	require.NoError(t, conn.DB().Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)").Error)

	again, err := resolver.ResolveDBConnection(context.Background(), "register")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveDBConnection(context.Background(), "other")
	assert.Error(t, err)
	_, err = resolver.ResolveDBConnection(context.Background(), "missing")
	assert.Error(t, err)

	require.NoError(t, resolver.CloseAll())
}

func TestIsDuplicateKey(t *testing.T) {
	db, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE u (k TEXT NOT NULL UNIQUE)").Error)
	require.NoError(t, db.Exec("INSERT INTO u (k) VALUES ('a')").Error)

	err = db.Exec("INSERT INTO u (k) VALUES ('a')").Error
	require.Error(t, err)
	assert.True(t, gormadapter.IsDuplicateKey(err))
	assert.False(t, gormadapter.IsDuplicateKey(nil))

	err = db.Exec("SELECT * FROM missing_table").Error
	assert.True(t, gormadapter.IsTableNotExist(err))
}
