// Package migration applies the embedded schema migrations with golang-migrate.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/statreg/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// MigrationsTable tracks the applied schema version.
const MigrationsTable = "statreg_schema_migrations"

// Migrator applies migrations to one database connection.
type Migrator interface {
	// Up applies all pending migrations.
	Up(ctx context.Context) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context) error
	// Version returns the applied version and whether it is dirty.
	Version(ctx context.Context) (uint, bool, error)
}

type migrator struct {
	cfg         dbconfig.DatabaseConfig
	name        string
	migrationFS fs.FS
}

// NewMigrator creates a Migrator for the datasource cfg. It reads the directory
// named after cfg.Type from migrationFS. Every call opens a dedicated connection,
// because golang-migrate closes the database it was given.
func NewMigrator(name string, cfg dbconfig.DatabaseConfig, migrationFS fs.FS) Migrator {
	return &migrator{cfg: cfg, name: name, migrationFS: migrationFS}
}

func (m *migrator) driver() (migratedb.Driver, error) {
	db, err := gormadapter.Open(m.cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch m.cfg.Type {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	}
	_ = sqlDB.Close()
	return nil, fmt.Errorf("unsupported database type for migration: %s", m.cfg.Type)
}

func (m *migrator) instance() (*migrate.Migrate, error) {
	source, err := iofs.New(m.migrationFS, m.cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for %s: %w", m.cfg.Type, err)
	}
	driver, err := m.driver()
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	inst, err := migrate.NewWithInstance("iofs", source, m.cfg.Type, driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return inst, nil
}

func (m *migrator) run(command string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (%s)", command, m.name, m.cfg.Type)
	inst, err := m.instance()
	if err != nil {
		return err
	}
	defer closeInstance(inst)

	if err := fn(inst); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed on '%s': %w", command, m.name, err)
	}
	logger.Infof("Migration '%s' completed successfully.", command)
	return nil
}

func (m *migrator) Up(ctx context.Context) error {
	return m.run("up", func(inst *migrate.Migrate) error { return inst.Up() })
}

func (m *migrator) Down(ctx context.Context) error {
	return m.run("down", func(inst *migrate.Migrate) error { return inst.Down() })
}

func (m *migrator) Version(ctx context.Context) (uint, bool, error) {
	inst, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	defer closeInstance(inst)
	version, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func closeInstance(inst *migrate.Migrate) {
	srcErr, dbErr := inst.Close()
	if srcErr != nil || dbErr != nil {
		logger.Debugf("Failed to close migrate instance: source=%v database=%v", srcErr, dbErr)
	}
}
