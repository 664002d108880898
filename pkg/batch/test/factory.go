// Package test holds helpers shared by the package tests: database fixtures,
// connection fakes, mocks and model builders.
package test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	"github.com/tigerroll/statreg/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/statreg/pkg/batch/component/migration/filesystem"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
)

// UploadsStorage is the storage connection name served by NewLocalStorage.
const UploadsStorage = "uploads"

// NewSQLiteDB opens a private in-memory SQLite database with the import schema
// applied. A single pooled connection keeps every statement on the same database.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gormadapter.Open(dbconfig.DatabaseConfig{
		Type:     "sqlite",
		Database: ":memory:",
		Pool:     dbconfig.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	})
	require.NoError(t, err)

	up, err := fs.ReadFile(filesystem.ProvideMigrationsFS(), "sqlite/000001_create_import_tables.up.sql")
	require.NoError(t, err)
	require.NoError(t, db.Exec(string(up)).Error)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewMockGormDB returns a GORM handle speaking the MySQL dialect to sqlmock.
func NewMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		_ = sqlDB.Close()
	})
	return gormDB, mock
}

// MockDBConnection is a database.DBConnection over a fixed *gorm.DB.
type MockDBConnection struct {
	db   *gorm.DB
	name string
}

// NewMockDBConnection wraps db as a connection called name.
func NewMockDBConnection(db *gorm.DB, name string) dbadapter.DBConnection {
	return &MockDBConnection{db: db, name: name}
}

func (m *MockDBConnection) Name() string                    { return m.name }
func (m *MockDBConnection) Type() string                    { return "mock_db" }
func (m *MockDBConnection) DB() *gorm.DB                    { return m.db }
func (m *MockDBConnection) Ping(ctx context.Context) error  { return nil }
func (m *MockDBConnection) Config() dbconfig.DatabaseConfig { return dbconfig.DatabaseConfig{Type: "mock_db"} }
func (m *MockDBConnection) Close() error                    { return nil }

// NewTestConfig returns the default configuration with an in-memory "register"
// datasource and a local "uploads" storage rooted at baseDir.
func NewTestConfig(baseDir string) *config.Config {
	cfg := config.NewConfig()
	cfg.Statreg.Datasources["register"] = map[string]interface{}{"type": "sqlite", "database": ":memory:"}
	cfg.Statreg.Storage[UploadsStorage] = map[string]interface{}{"type": "local", "base_dir": baseDir}
	return cfg
}

// NewLocalStorage returns a storage resolver whose "uploads" connection is a
// temporary directory, and that directory.
func NewLocalStorage(t *testing.T) (storageAdapter.StorageConnectionResolver, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := NewTestConfig(dir)
	resolver := storageAdapter.NewConnectionResolver(storageAdapter.ResolverParams{
		Providers: []storageAdapter.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })
	return resolver, dir
}
