package gorm

import (
	"context"
	"fmt"

	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	"github.com/tigerroll/statreg/pkg/batch/adapter/database"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"

	"gorm.io/gorm"
)

// Connection implements database.DBConnection over a *gorm.DB.
type Connection struct {
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

var _ database.DBConnection = (*Connection)(nil)

// NewConnection wraps an open GORM handle.
func NewConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *Connection {
	return &Connection{db: db, cfg: cfg, name: name}
}

func (c *Connection) Name() string                     { return c.name }
func (c *Connection) Type() string                     { return c.cfg.Type }
func (c *Connection) DB() *gorm.DB                     { return c.db }
func (c *Connection) Config() dbconfig.DatabaseConfig { return c.cfg }

// Ping implements database.DBConnection.
func (c *Connection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("database connection '%s' is not initialized: %w", c.name, err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying pool.
func (c *Connection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	logger.Infof("Closing database connection '%s'...", c.name)
	return sqlDB.Close()
}
